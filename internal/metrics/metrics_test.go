package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordModelCall(t *testing.T) {
	before := testutil.ToFloat64(modelCalls.WithLabelValues("test-provider", "success"))
	beforeTokens := testutil.ToFloat64(modelTokens.WithLabelValues("test-provider"))

	RecordModelCall("test-provider", "success", 200*time.Millisecond, 150)
	RecordModelCall("test-provider", "success", 100*time.Millisecond, 0)

	assert.Equal(t, before+2, testutil.ToFloat64(modelCalls.WithLabelValues("test-provider", "success")))
	assert.Equal(t, beforeTokens+150, testutil.ToFloat64(modelTokens.WithLabelValues("test-provider")))
}

func TestRecordSheetRefresh(t *testing.T) {
	okBefore := testutil.ToFloat64(sheetRefreshes.WithLabelValues("test-sheet", "success"))
	errBefore := testutil.ToFloat64(sheetRefreshes.WithLabelValues("test-sheet", "error"))

	RecordSheetRefresh("test-sheet", nil)
	RecordSheetRefresh("test-sheet", errors.New("boom"))
	RecordSheetRefresh("test-sheet", errors.New("boom"))

	assert.Equal(t, okBefore+1, testutil.ToFloat64(sheetRefreshes.WithLabelValues("test-sheet", "success")))
	assert.Equal(t, errBefore+2, testutil.ToFloat64(sheetRefreshes.WithLabelValues("test-sheet", "error")))
}

func TestRecordResolutionAndFlags(t *testing.T) {
	before := testutil.ToFloat64(resolutions.WithLabelValues("distance_check", "justify"))
	RecordResolution("distance_check", "justify")
	assert.Equal(t, before+1, testutil.ToFloat64(resolutions.WithLabelValues("distance_check", "justify")))

	flagsBefore := testutil.ToFloat64(redFlags.WithLabelValues("blacklist_check"))
	RecordRedFlag("blacklist_check")
	assert.Equal(t, flagsBefore+1, testutil.ToFloat64(redFlags.WithLabelValues("blacklist_check")))
}
