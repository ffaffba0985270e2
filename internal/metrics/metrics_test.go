package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.RecordPassphrase(OutcomeRejected)
	m.RecordPassphrase(OutcomeRejected)
	m.RecordPassphrase(OutcomeAccepted)
	m.PromptOpened()
	m.PromptOpened()
	m.PromptClosed()
	m.RecordDecryption("totp", "ok")
	m.RecordRecovery("ResponseDataDecrypted", "cryptographic")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.passphraseAttempts.WithLabelValues(OutcomeRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.passphraseAttempts.WithLabelValues(OutcomeAccepted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pendingPrompts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.secretDecryptions.WithLabelValues("totp", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.recoverySteps.WithLabelValues("ResponseDataDecrypted", "cryptographic")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordPassphrase(OutcomeExhausted)
		m.PromptOpened()
		m.PromptClosed()
		m.RecordDecryption("totp", "ok")
		m.RecordRecovery("Done", "ok")
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.RecordPassphrase(OutcomeAccepted)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `keywarden_passphrase_attempts_total{outcome="accepted"} 1`)
}
