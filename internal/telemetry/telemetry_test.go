package telemetry

import (
	"context"
	"testing"
)

func TestSetupDisabledIsNoop(t *testing.T) {
	for _, cfg := range []Config{
		{},
		{Enabled: true},
		{Enabled: false, Endpoint: "http://localhost:4318"},
	} {
		shutdown, err := Setup(context.Background(), cfg)
		if err != nil {
			t.Fatalf("setup %+v: %v", cfg, err)
		}
		if err := shutdown(context.Background()); err != nil {
			t.Fatalf("shutdown %+v: %v", cfg, err)
		}
	}
}
