package devices

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	infoHTTPClientTimeout = 5 * time.Second
	infoHTTPDialTimeout   = 2 * time.Second
	infoRetryMax          = 2
)

// eurekaPort is the receiver's local setup API port.
var eurekaPort = 8008

// DeviceInfo is the subset of the receiver's eureka_info document shown
// by the device listing.
type DeviceInfo struct {
	Name         string `json:"name"`
	BuildVersion string `json:"cast_build_revision"`
	DeviceInfo   struct {
		ModelName    string `json:"model_name"`
		Manufacturer string `json:"manufacturer"`
	} `json:"device_info"`
	BuildInfo struct {
		CastBuildRevision string `json:"cast_build_revision"`
	} `json:"build_info"`
}

// Firmware returns the cast build revision regardless of which document
// layout the receiver answered with.
func (i *DeviceInfo) Firmware() string {
	if i.BuildInfo.CastBuildRevision != "" {
		return i.BuildInfo.CastBuildRevision
	}
	return i.BuildVersion
}

func newRetryableHTTPClient(retryMax int) *http.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = retryMax
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 1 * time.Second
	retryClient.Logger = nil
	retryClient.HTTPClient = &http.Client{
		Timeout: infoHTTPClientTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{Timeout: infoHTTPDialTimeout}).DialContext,
		},
	}

	return retryClient.StandardClient()
}

func eurekaInfoURL(addr string) (string, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("parse device addr: %w", err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("parse device addr: missing host in %q", addr)
	}

	info := url.URL{
		Scheme:   "http",
		Host:     net.JoinHostPort(u.Hostname(), strconv.Itoa(eurekaPort)),
		Path:     "/setup/eureka_info",
		RawQuery: "params=name,device_info,build_info",
	}
	return info.String(), nil
}

// FetchDeviceInfo asks the receiver at addr (in Device.Addr form) for its
// model and firmware details.
func FetchDeviceInfo(ctx context.Context, addr string) (*DeviceInfo, error) {
	infoURL, err := eurekaInfoURL(addr)
	if err != nil {
		return nil, fmt.Errorf("FetchDeviceInfo: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, infoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("FetchDeviceInfo request: %w", err)
	}

	resp, err := newRetryableHTTPClient(infoRetryMax).Do(req)
	if err != nil {
		return nil, fmt.Errorf("FetchDeviceInfo do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("FetchDeviceInfo: unexpected status %s", resp.Status)
	}

	info := &DeviceInfo{}
	if err := json.NewDecoder(resp.Body).Decode(info); err != nil {
		return nil, fmt.Errorf("FetchDeviceInfo decode: %w", err)
	}

	return info, nil
}
