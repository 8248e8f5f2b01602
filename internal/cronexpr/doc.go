// Package cronexpr parses and validates the cron expressions accepted by the job registry.
//
// Grammar (seconds first, Quartz field order):
//
//	second minute hour day-of-month month day-of-week [year]
//
// Quartz rules apply to the day fields: exactly one of day-of-month and
// day-of-week is "?". Day-of-week numbers run 1-7 starting at SUN. L, W,
// LW and L-n are accepted in day-of-month; n#k, nL and L in day-of-week.
// The optional year field covers 1970-2099.
//
// Two extensions beyond Quartz are accepted: a CRON_TZ=/TZ= prefix and the
// named descriptors (@daily, @hourly, ...). Interval schedules (@every) are
// rejected.
//
// An expression is valid for scheduling only when it parses AND its first fire time,
// computed from "now", exists and is strictly in the future.
package cronexpr
