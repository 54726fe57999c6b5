// Package chrono provides a full-featured task scheduler for Go applications.
// It supports cron-based scheduling, fixed-interval scheduling, and one-shot
// delayed task execution with comprehensive job management capabilities.
package chrono
