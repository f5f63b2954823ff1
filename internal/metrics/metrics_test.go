package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInit(t *testing.T) {
	// Reset collectors for testing purposes.
	listingPagesTotal = nil
	itemsTotal = nil
	httpRequestsTotal = nil
	httpRequestDurationSeconds = nil

	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if listingPagesTotal == nil || itemsTotal == nil ||
		httpRequestsTotal == nil || httpRequestDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}

	ObserveListingPage("global")
	if val := testutil.ToFloat64(listingPagesTotal.WithLabelValues("global")); val != 1 {
		t.Errorf("Expected listingPagesTotal to be 1, got %f", val)
	}

	ObserveItem("kr", "created")
	if val := testutil.ToFloat64(itemsTotal.WithLabelValues("kr", "created")); val != 1 {
		t.Errorf("Expected itemsTotal to be 1, got %f", val)
	}

	ObserveImage("stored")
	if val := testutil.ToFloat64(imagesTotal.WithLabelValues("stored")); val != 1 {
		t.Errorf("Expected imagesTotal to be 1, got %f", val)
	}
}
