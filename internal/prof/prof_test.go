package prof

import (
	"context"
	"strings"
	"testing"
)

func TestStart_Disabled_StopIsNoop(t *testing.T) {
	stop, err := Start(context.Background(), Options{Enabled: false})
	if err != nil {
		t.Fatalf("Start disabled: %v", err)
	}
	if stop == nil {
		t.Fatal("stop func is nil")
	}
	stop()
	stop()
}

func TestStart_Enabled_EmptyServerAddressErrors(t *testing.T) {
	stop, err := Start(context.Background(), Options{
		Enabled: true,
		AppName: "ordinance-api",
	})
	if err == nil {
		t.Fatal("expected error for empty server address")
	}
	if !strings.Contains(err.Error(), "invalid server address") {
		t.Fatalf("error = %q", err.Error())
	}
	if stop == nil {
		t.Fatal("stop must be non-nil even on error")
	}
	stop()
}
