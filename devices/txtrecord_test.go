package devices

import "testing"

func TestParseTXT(t *testing.T) {
	tests := []struct {
		name      string
		fields    []string
		instance  string
		wantName  string
		wantModel string
		wantAudio bool
	}{
		{
			name:      "video receiver",
			fields:    []string{"id=abc", "md=Chromecast Ultra", "fn=Living Room TV", "ca=201221"},
			instance:  "Chromecast-Ultra-abc._googlecast._tcp.local.",
			wantName:  "Living Room TV",
			wantModel: "Chromecast Ultra",
		},
		{
			name:      "audio only receiver",
			fields:    []string{"fn=Kitchen speaker", "md=Google Home", "ca=2052"},
			wantName:  "Kitchen speaker",
			wantModel: "Google Home",
			wantAudio: true,
		},
		{
			name:      "missing fn falls back to instance",
			fields:    []string{"md=Chromecast"},
			instance:  "Chromecast-xyz._googlecast._tcp.local.",
			wantName:  "Chromecast-xyz",
			wantModel: "Chromecast",
		},
		{
			name:     "garbage ca treated as video",
			fields:   []string{"fn=TV", "ca=notanumber", "broken"},
			wantName: "TV",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := parseTXT(tt.fields)
			if got := rec.friendlyName(tt.instance); got != tt.wantName {
				t.Fatalf("friendlyName() = %q, want %q", got, tt.wantName)
			}
			if rec.Model != tt.wantModel {
				t.Fatalf("Model = %q, want %q", rec.Model, tt.wantModel)
			}
			if got := rec.audioOnly(); got != tt.wantAudio {
				t.Fatalf("audioOnly() = %v, want %v", got, tt.wantAudio)
			}
		})
	}
}
