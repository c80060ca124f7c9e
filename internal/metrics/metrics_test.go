// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordRotation(t *testing.T) {
	before := testutil.ToFloat64(RotationsTotal.WithLabelValues("forced", "success"))
	RecordRotation("forced", "success", 2*time.Second)
	after := testutil.ToFloat64(RotationsTotal.WithLabelValues("forced", "success"))
	if after != before+1 {
		t.Errorf("RotationsTotal = %v, want %v", after, before+1)
	}
}

func TestRecordCollaboratorCall(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		result string
	}{
		{"success", nil, "success"},
		{"failure", errors.New("timeout"), "failure"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := CollaboratorCalls.WithLabelValues("gemini", "summarize", tt.result)
			before := testutil.ToFloat64(c)
			RecordCollaboratorCall("gemini", "summarize", 10*time.Millisecond, tt.err)
			if got := testutil.ToFloat64(c); got != before+1 {
				t.Errorf("CollaboratorCalls{%s} = %v, want %v", tt.result, got, before+1)
			}
		})
	}
}

func TestTrackActiveRequest(t *testing.T) {
	before := testutil.ToFloat64(APIActiveRequests)
	TrackActiveRequest(true)
	if got := testutil.ToFloat64(APIActiveRequests); got != before+1 {
		t.Errorf("after inc = %v, want %v", got, before+1)
	}
	TrackActiveRequest(false)
	if got := testutil.ToFloat64(APIActiveRequests); got != before {
		t.Errorf("after dec = %v, want %v", got, before)
	}
}

func TestRecordCacheAccess(t *testing.T) {
	hits := testutil.ToFloat64(CacheHits.WithLabelValues("active_survey"))
	misses := testutil.ToFloat64(CacheMisses.WithLabelValues("active_survey"))

	RecordCacheAccess("active_survey", true)
	RecordCacheAccess("active_survey", false)
	RecordCacheAccess("active_survey", false)

	if got := testutil.ToFloat64(CacheHits.WithLabelValues("active_survey")); got != hits+1 {
		t.Errorf("CacheHits = %v, want %v", got, hits+1)
	}
	if got := testutil.ToFloat64(CacheMisses.WithLabelValues("active_survey")); got != misses+2 {
		t.Errorf("CacheMisses = %v, want %v", got, misses+2)
	}
}
