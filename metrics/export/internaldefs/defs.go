package internaldefs

import (
	"sort"

	goRecovery "github.com/MrEthical07/goRecovery"
)

// FlowCounter binds an engine counter to its exported name. Event is the
// short name used as an attribute value where the exporter groups flow
// counters into one instrument.
type FlowCounter struct {
	ID    goRecovery.MetricID
	Name  string
	Event string
	Help  string
}

// FlowCounters lists every flow counter in a stable order.
var FlowCounters = []FlowCounter{
	{goRecovery.MetricRecoveryRequest, "gorecovery_request_total", "request", "Submitted forgot-password forms."},
	{goRecovery.MetricRecoverySent, "gorecovery_sent_total", "sent", "Recovery messages delivered."},
	{goRecovery.MetricChannelFailure, "gorecovery_channel_failure_total", "channel_failure", "Channel delivery failures."},
	{goRecovery.MetricAllChannelsFailed, "gorecovery_all_channels_failed_total", "all_channels_failed", "Requests where no channel could deliver."},
	{goRecovery.MetricRateLimited, "gorecovery_rate_limited_total", "rate_limited", "Requests rejected by the cooldown or throttle."},
	{goRecovery.MetricCodeInvalid, "gorecovery_code_invalid_total", "code_invalid", "Rejected confirmation codes."},
	{goRecovery.MetricCodeOutOfTries, "gorecovery_code_out_of_tries_total", "code_out_of_tries", "Confirmation codes rejected after the attempt cap."},
	{goRecovery.MetricHashInvalid, "gorecovery_hash_invalid_total", "hash_invalid", "Rejected recovery hashes."},
	{goRecovery.MetricPasswordSet, "gorecovery_password_set_total", "password_set", "Passwords set through recovery."},
	{goRecovery.MetricPasswordGenerated, "gorecovery_password_generated_total", "password_generated", "Generated passwords delivered."},
	{goRecovery.MetricBanned, "gorecovery_banned_total", "banned", "Requests for contacts banned from recovery."},
	{goRecovery.MetricContactNotFound, "gorecovery_contact_not_found_total", "contact_not_found", "Requests for unknown logins."},
	{goRecovery.MetricNotFound, "gorecovery_not_found_total", "not_found", "Requests answered with not found."},
}

// Delivery is one (message, result) column of the per-channel counters.
type Delivery struct {
	Message string // "recovery" or "password"
	Result  string // "sent" or "failed"
	Value   func(goRecovery.ChannelDeliveries) uint64
}

var Deliveries = []Delivery{
	{"recovery", "sent", func(d goRecovery.ChannelDeliveries) uint64 { return d.RecoverySent }},
	{"recovery", "failed", func(d goRecovery.ChannelDeliveries) uint64 { return d.RecoveryFailed }},
	{"password", "sent", func(d goRecovery.ChannelDeliveries) uint64 { return d.PasswordSent }},
	{"password", "failed", func(d goRecovery.ChannelDeliveries) uint64 { return d.PasswordFailed }},
}

const (
	DeliveriesName = "gorecovery_channel_deliveries_total"
	DeliveriesHelp = "Delivery attempts per channel, message and result."

	LatencyName = "gorecovery_handle_latency_seconds"
	LatencyHelp = "Time spent handling one recovery request."

	AuditDroppedName = "gorecovery_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped because the dispatcher buffer was full."
)

// LatencyBounds are the upper bounds, in seconds, of the first seven
// latency buckets. The eighth bucket is unbounded.
var LatencyBounds = [7]float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// LatencyLabels are the le label values of all eight buckets.
var LatencyLabels = [8]string{"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf"}

// CumulativeBuckets turns per-bucket counts into running totals, padding a
// short or missing histogram with zeros.
func CumulativeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := range out {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}

// SortedKeys returns the keys of m in lexical order, so exports are
// deterministic.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
