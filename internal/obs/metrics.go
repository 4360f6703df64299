// Package obs exposes the Prometheus metrics the core emits: counters
// and histograms over ratchet steps, sender-key rotations, backup
// operations, and the skipped-message-key cache, following the
// teacher's promauto idiom.
package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RatchetMessagesTotal counts pairwise ratchet messages by direction
	// and outcome. internal/core records the send direction only.
	RatchetMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "e2ecore_ratchet_messages_total",
			Help: "Total number of pairwise ratchet messages processed",
		},
		[]string{"direction", "result"}, // send, ok|error
	)

	// RatchetDHStepsTotal counts DH ratchet steps, which happen once per
	// reply direction change.
	RatchetDHStepsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "e2ecore_ratchet_dh_steps_total",
			Help: "Total number of Double Ratchet DH ratchet steps performed",
		},
	)

	// SkippedKeyCacheDepth tracks how many skipped message keys a session
	// is currently holding, sampled on every Decrypt call.
	SkippedKeyCacheDepth = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "e2ecore_skipped_key_cache_depth",
			Help:    "Number of cached skipped message keys per session at decrypt time",
			Buckets: prometheus.LinearBuckets(0, 16, 17), // 0..256 in steps of 16
		},
	)

	// SenderKeyRotationsTotal counts sender-key (re)generation events, for
	// example on membership changes.
	SenderKeyRotationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "e2ecore_senderkey_rotations_total",
			Help: "Total number of sender-key rotations",
		},
		[]string{"channel_id"},
	)

	// GroupMessagesTotal counts sender-key frame encrypt/decrypt calls.
	GroupMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "e2ecore_group_messages_total",
			Help: "Total number of sender-key group messages processed",
		},
		[]string{"direction", "result"},
	)

	// Argon2DerivationSeconds measures the wall-clock cost of the backup
	// codec's Argon2id key derivation, which is deliberately expensive.
	Argon2DerivationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "e2ecore_backup_argon2_derivation_seconds",
			Help:    "Wall-clock time spent deriving a backup key with Argon2id",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 8), // 50ms to ~6.4s
		},
	)

	// BackupOperationsTotal counts backup encrypt/decrypt calls by
	// outcome.
	BackupOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "e2ecore_backup_operations_total",
			Help: "Total number of backup encrypt/decrypt operations",
		},
		[]string{"operation", "result"}, // encrypt|decrypt, ok|error
	)

	// X3DHHandshakesTotal counts completed handshakes by role.
	X3DHHandshakesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "e2ecore_x3dh_handshakes_total",
			Help: "Total number of completed X3DH handshakes",
		},
		[]string{"role"}, // initiator|responder
	)
)
