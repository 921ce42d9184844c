package proxy

import (
	"context"
	"testing"
	"time"
)

func TestNewDialer_SchemeValidation(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"ws scheme", "ws://127.0.0.1:1338/ws", false},
		{"wss scheme", "wss://gateway.local/ws", false},
		{"http scheme", "http://127.0.0.1:1338/ws", true},
		{"no scheme", "127.0.0.1:1338", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDialer(tt.url, time.Second)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewDialer(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestDialer_ConnectRefused(t *testing.T) {
	// Port 1 is never listening; the dial must fail, not hang.
	d, err := NewDialer("ws://127.0.0.1:1/ws", 500*time.Millisecond)
	if err != nil {
		t.Fatalf("NewDialer: %v", err)
	}

	start := time.Now()
	if _, err := d.Connect(context.Background()); err == nil {
		t.Fatal("Connect() succeeded, want error")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Connect() took %v, want prompt failure", elapsed)
	}
}

func TestDialer_ConnectHonoursContext(t *testing.T) {
	d, err := NewDialer("ws://192.0.2.1:1338/ws", 10*time.Second)
	if err != nil {
		t.Fatalf("NewDialer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := d.Connect(ctx); err == nil {
		t.Fatal("Connect() with cancelled context succeeded, want error")
	}
}
