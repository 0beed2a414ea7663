// Package logging provides structured logging for helmd.
//
// # Overview
//
// The package wraps Zap with:
//   - A Trace level (-2, below Debug)
//   - Stdout output plus an optional OpenTelemetry log bridge
//   - Context field injection (trace_id, request.id, intent.id, actor)
//   - Secret redaction by key and pattern, and optional privacy-rule
//     masking of personal data inside string values
//   - Per-level sampling (errors never sampled)
//
// # Usage
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg, nil,
//	    logging.WithContentRedactor(redactor))
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithRequestID(ctx, "req-42")
//	ctx = logging.WithIntentID(ctx, id)
//	logger.Info(ctx, "intent approved", zap.String("by", actor))
//
// Components take a *zap.Logger from logger.Underlying() and name
// themselves with Named.
//
// Correlation IDs come from request headers and operator input. Invalid
// values (empty, too long, unexpected characters) are dropped rather than
// logged.
//
// # Testing
//
//	logger := logging.NewTestLogger()
//	svc := NewService(logger.Underlying())
//	logger.AssertLogged(t, zapcore.InfoLevel, "intent approved")
//	logger.AssertNoSecrets(t)
package logging
