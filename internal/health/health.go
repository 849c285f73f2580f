package health

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"deathteller/skull/internal/config"
)

type CheckResult struct {
	Name    string        `json:"name"`
	OK      bool          `json:"ok"`
	Latency time.Duration `json:"latency_ms"`
	Error   string        `json:"error,omitempty"`
}

type HealthStatus struct {
	OK        bool          `json:"ok"`
	Checks    []CheckResult `json:"checks"`
	CheckedAt time.Time     `json:"checked_at"`
}

func (h HealthStatus) String() string {
	status := "OK"
	if !h.OK {
		status = "FAIL"
	}
	s := fmt.Sprintf("Health: %s\n", status)
	for _, c := range h.Checks {
		mark := "✓"
		if !c.OK {
			mark = "✗"
		}
		s += fmt.Sprintf("  %s %s (%dms)", mark, c.Name, c.Latency.Milliseconds())
		if c.Error != "" {
			s += fmt.Sprintf(" - %s", c.Error)
		}
		s += "\n"
	}
	return s
}

type ClipLister interface {
	List(dir string) ([]string, error)
}

type TemplateChecker interface {
	Check(path string) error
}

type PrinterStatus interface {
	IsReady() bool
}

// faulter is implemented by printers that latch a write error.
type faulter interface {
	Fault() error
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the components whose readiness is checked. Nil entries fail
// their check.
type Deps struct {
	Clips     ClipLister
	Templates TemplateChecker
	Printer   PrinterStatus
	Journal   Pinger
}

// Required names the checks that decide readiness. A skull without a
// printer still runs visits, so the printer is informational.
var Required = map[string]bool{"audio": true, "fortunes": true, "journal": true}

// CheckAll runs all health checks and returns combined status
func CheckAll(ctx context.Context, cfg config.Config, deps Deps) HealthStatus {
	checks := []CheckResult{
		checkAudio(cfg, deps.Clips),
		checkFortunes(cfg, deps.Templates),
		checkPrinter(cfg, deps.Printer),
		checkJournal(ctx, deps.Journal),
	}

	allOK := true
	for _, c := range checks {
		if !c.OK && Required[c.Name] {
			allOK = false
		}
	}

	return HealthStatus{
		OK:        allOK,
		Checks:    checks,
		CheckedAt: time.Now().UTC(),
	}
}

func checkAudio(cfg config.Config, clips ClipLister) CheckResult {
	start := time.Now()
	result := CheckResult{Name: "audio"}

	if clips == nil {
		result.Error = "no clip source"
		result.Latency = time.Since(start)
		return result
	}
	var empty []string
	for _, dir := range cfg.AudioDirs() {
		found, err := clips.List(dir)
		if err != nil || len(found) == 0 {
			empty = append(empty, dir)
		}
	}
	result.Latency = time.Since(start)
	if len(empty) > 0 {
		result.Error = "no clips in " + strings.Join(empty, ", ")
		return result
	}
	result.OK = true
	return result
}

func checkFortunes(cfg config.Config, templates TemplateChecker) CheckResult {
	start := time.Now()
	result := CheckResult{Name: "fortunes"}

	if templates == nil {
		result.Error = "no template source"
		result.Latency = time.Since(start)
		return result
	}
	var errs []error
	for _, path := range cfg.Fortune.Candidates {
		err := templates.Check(path)
		if err == nil {
			result.OK = true
			break
		}
		errs = append(errs, err)
	}
	result.Latency = time.Since(start)
	if !result.OK {
		if len(errs) == 0 {
			result.Error = "no template candidates configured"
		} else {
			result.Error = errors.Join(errs...).Error()
		}
	}
	return result
}

func checkPrinter(cfg config.Config, p PrinterStatus) CheckResult {
	start := time.Now()
	result := CheckResult{Name: "printer"}
	switch {
	case cfg.Printer.Device == "":
		result.Error = "PRINTER_DEVICE not set"
	case p == nil:
		result.Error = fmt.Sprintf("printer %s not open", cfg.Printer.Device)
	case !p.IsReady():
		result.Error = fmt.Sprintf("printer %s not ready", cfg.Printer.Device)
		if f, ok := p.(faulter); ok && f.Fault() != nil {
			result.Error += ": " + f.Fault().Error()
		}
	default:
		result.OK = true
	}
	result.Latency = time.Since(start)
	return result
}

func checkJournal(ctx context.Context, j Pinger) CheckResult {
	start := time.Now()
	result := CheckResult{Name: "journal"}
	if j == nil {
		result.Error = "journal not open"
		result.Latency = time.Since(start)
		return result
	}
	if err := j.Ping(ctx); err != nil {
		result.Error = fmt.Sprintf("ping failed: %v", err)
	} else {
		result.OK = true
	}
	result.Latency = time.Since(start)
	return result
}
