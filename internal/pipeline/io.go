package pipeline

import (
	"context"
	"log/slog"

	"github.com/maauso/visxp-prep/internal/output"
)

// applyIO transfers and cleans up the output of a processed input and
// decides the final result.
func (o *Orchestrator) applyIO(ctx context.Context, p *processed) Result {
	if p.file == nil {
		if !p.OK() {
			return p.Result
		}
		return Result{StateNoArtifact, MsgNoMediaFile}
	}
	log := o.logger.With(slog.String("source_id", p.file.SourceID))

	if !p.OK() {
		log.Error("could not process the input properly", slog.String("message", p.Message))
		if o.opts.DeleteInputOnCompletion {
			deleted := o.deps.Output.DeleteInputFile(p.file.Path, o.opts.InputDir)
			log.Info("deleted input file of failed process", slog.Bool("deleted", deleted))
		}
		return p.Result
	}

	if o.opts.TransferOnCompletion {
		uris, err := o.deps.Output.Transfer(ctx, p.file.SourceID, p.kinds)
		if err != nil {
			log.Error("failed to transfer output", slog.String("error", err.Error()))
			o.transition(p, output.StateTransferFailed)
			return Result{StateServerError, MsgTransfer}
		}
		log.Info("transferred output", slog.Any("uris", uris))
		o.transition(p, output.StateTransferred)
	}

	if o.opts.DeleteOutputOnCompletion {
		if o.deps.Output.DeleteLocalOutput(p.file.SourceID) {
			o.transition(p, output.StateCleaned)
		} else {
			log.Warn("could not delete output files",
				slog.String("dir", o.deps.Output.Layout().SourceDir(p.file.SourceID)),
			)
			o.transition(p, output.StateCleanSkipped)
		}
	}

	if o.opts.DeleteInputOnCompletion && !o.deps.Output.DeleteInputFile(p.file.Path, o.opts.InputDir) {
		return Result{StateServerError, MsgInputNotDeleted}
	}

	o.transition(p, output.StateDone)
	return Result{StateOK, MsgSuccess}
}
