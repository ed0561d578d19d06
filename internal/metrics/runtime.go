// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	processLaunchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "minios_process_launches_total",
		Help: "Application launches by kind and outcome",
	}, []string{"kind", "outcome"}) // kind=virtual|external

	processesLive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "minios_processes_live",
		Help: "Processes in running or minimized state",
	})

	procTerminateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "minios_proc_terminate_total",
		Help: "Signals sent to process groups by signal and result",
	}, []string{"signal", "result"}) // result=sent|esrch|error

	notificationsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "minios_notifications_published_total",
		Help: "Notifications published by source",
	}, []string{"source"})

	notificationsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "minios_notifications_dropped_total",
		Help: "Notification deliveries dropped by reason",
	}, []string{"reason"}) // reason=subscriber_full|sink_error

	terminalCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "minios_terminal_commands_total",
		Help: "Terminal commands executed by command and outcome",
	}, []string{"command", "outcome"})

	scriptRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "minios_script_runs_total",
		Help: "Script executions by language and outcome",
	}, []string{"lang", "outcome"}) // lang=lua|go|batch
)

func IncProcessLaunch(kind string, err error) {
	processLaunchesTotal.WithLabelValues(kind, outcomeOf(err)).Inc()
}

func SetProcessesLive(n int) { processesLive.Set(float64(n)) }

// IncProcTerminate records a signal delivery attempt to a process group.
func IncProcTerminate(signal, result string) {
	procTerminateTotal.WithLabelValues(signal, result).Inc()
}

func IncNotificationPublished(source string) {
	if source == "" {
		source = "unknown"
	}
	notificationsPublished.WithLabelValues(source).Inc()
}

// IncNotificationDrop records a notification that did not reach a consumer.
func IncNotificationDrop(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	notificationsDropped.WithLabelValues(reason).Inc()
}

// IncTerminalCommand counts a terminal command. Callers pass a known command
// word or "eval"; raw input must never become a label.
func IncTerminalCommand(command string, err error) {
	terminalCommands.WithLabelValues(command, outcomeOf(err)).Inc()
}

func IncScriptRun(lang string, err error) {
	scriptRuns.WithLabelValues(lang, outcomeOf(err)).Inc()
}

func outcomeOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
