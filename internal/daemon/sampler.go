package daemon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"typetrace/internal/logging"
	"typetrace/internal/memory"
	"typetrace/internal/optimize"
	"typetrace/internal/pool"
)

// samplerLoop periodically samples memory pressure. When auto-optimize is on
// and the classified level reaches the configured trigger, it schedules an
// optimization run through the pool; critical pressure runs inline instead
// of waiting for a worker.
func (d *Daemon) samplerLoop(ctx context.Context) {
	defer d.samplerWG.Done()

	interval := time.Duration(d.cfg.Memory.SampleInterval) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	trigger, ok := memory.ParseLevel(d.cfg.Memory.TriggerLevel)
	if !ok {
		trigger = memory.LevelHigh
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		info, level := d.monitor.Classify(false)
		d.logger.Debug("memory sampled",
			logging.Float64("percent_used", info.PercentUsed),
			logging.String(logging.FieldLevel, level.String()))

		if !d.cfg.Memory.AutoOptimize || level < trigger {
			continue
		}

		if level >= memory.LevelCritical {
			result := d.engine.Run(ctx, optimize.Request{Emergency: true})
			d.logger.Warn("critical pressure optimization",
				logging.Bool("success", result.Success),
				logging.Uint64("freed_bytes", result.FreedBytes))
			continue
		}

		if _, err := d.pool.Submit(ctx, pool.TypeMemoryOptimization,
			map[string]any{"level": level.String()}); err != nil {
			// Saturation here means workers are busy; the next tick retries.
			d.logger.Debug("skipped scheduled optimization", logging.Error(err))
		}
	}
}

// runOptimizationTask is the pool handler for memory_optimization tasks.
func (d *Daemon) runOptimizationTask(ctx context.Context, payload any) (any, error) {
	req := optimize.Request{}
	fields := payloadFields(payload)
	if raw, ok := fields["level"].(string); ok && raw != "" {
		level, valid := memory.ParseLevel(raw)
		if !valid {
			return nil, fmt.Errorf("unknown optimization level %q", raw)
		}
		req.Level = &level
	}
	if emergency, ok := fields["emergency"].(bool); ok {
		req.Emergency = emergency
	}

	result := d.engine.Run(ctx, req)
	if !result.Success {
		return result, errors.New(result.Error)
	}
	return result, nil
}

// runComputationTask is the pool handler for computation tasks.
func (d *Daemon) runComputationTask(ctx context.Context, payload any) (any, error) {
	fields := payloadFields(payload)
	taskType, _ := fields["computation_type"].(string)
	if taskType == "" {
		return nil, errors.New("computation task requires computation_type")
	}

	result := d.Compute(ctx, taskType, fields["data"])
	if !result.Success {
		return result, errors.New(result.Error)
	}
	return result, nil
}

func payloadFields(payload any) map[string]any {
	if fields, ok := payload.(map[string]any); ok {
		return fields
	}
	return map[string]any{}
}
