package devices

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFetchDeviceInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/setup/eureka_info" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"Den TV","device_info":{"model_name":"Chromecast Ultra","manufacturer":"Google Inc."},"build_info":{"cast_build_revision":"1.56.500000"}}`))
	}))
	t.Cleanup(srv.Close)

	host, port, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)

	origPort := eurekaPort
	t.Cleanup(func() { eurekaPort = origPort })
	eurekaPort, err = strconv.Atoi(port)
	require.NoError(t, err)

	info, err := FetchDeviceInfo(context.Background(), "http://"+host+":8009")
	require.NoError(t, err)
	require.Equal(t, "Den TV", info.Name)
	require.Equal(t, "Chromecast Ultra", info.DeviceInfo.ModelName)
	require.Equal(t, "1.56.500000", info.Firmware())
}

func TestEurekaInfoURL(t *testing.T) {
	got, err := eurekaInfoURL("http://192.168.1.20:8009")
	require.NoError(t, err)
	require.Equal(t, "http://192.168.1.20:8008/setup/eureka_info?params=name,device_info,build_info", got)

	_, err = eurekaInfoURL("://bad")
	require.Error(t, err)
}
