package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

func TestSpinner_DrawsMessageAndClearsLine(t *testing.T) {
	var buf bytes.Buffer
	s := newSpinnerWithContext(context.Background(), "Sampling 100 tiles...")
	s.out = &buf

	s.Start()
	time.Sleep(200 * time.Millisecond)
	s.Stop()

	out := buf.String()
	if !strings.Contains(out, "Sampling 100 tiles...") {
		t.Error("spinner never drew its message")
	}
	if !strings.HasSuffix(out, "\r") {
		t.Error("spinner left the line uncleared")
	}
}

func TestSpinner_StopIsIdempotent(t *testing.T) {
	s := newSpinnerWithContext(context.Background(), "Rendering mosaic...")
	s.out = &bytes.Buffer{}
	s.Start()

	s.Stop()
	s.Stop()
	s.Stop()
}

func TestSpinner_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := newSpinnerWithContext(ctx, "Fetching frames...")
	s.out = &bytes.Buffer{}
	s.Start()

	cancel()
	select {
	case <-s.finished:
	case <-time.After(time.Second):
		t.Fatal("spinner kept running after context cancellation")
	}
	s.Stop()
}

func TestSpinner_StopsOnContextTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	s := newSpinnerWithContext(ctx, "Resolving segmentations...")
	s.out = &bytes.Buffer{}
	s.Start()

	select {
	case <-s.finished:
	case <-time.After(time.Second):
		t.Fatal("spinner kept running past its context deadline")
	}
	s.Stop()
}
