package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/guillermoBallester/whydiff/internal/core/domain"
)

// clientErrors are safe to show to the caller verbatim: they describe the
// request, not the server.
var clientErrors = []error{
	domain.ErrEmptyQuery,
	domain.ErrNotAllowed,
	domain.ErrMultiStatement,
	domain.ErrParseFailed,
	domain.ErrNotFound,
	domain.ErrSchemaMismatch,
	domain.ErrUnsupportedOrder,
	domain.ErrInvalidColumn,
	domain.ErrInvalidArgument,
}

// sanitizeError turns an error into a message for the MCP client. Request
// errors pass through, timeouts get a fixed message and everything else is
// logged and hidden.
func sanitizeError(logger *slog.Logger, err error, op string) string {
	for _, target := range clientErrors {
		if errors.Is(err, target) {
			return fmt.Sprintf("%s failed: %v", op, err)
		}
	}

	var pgErr *pgconn.PgError
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &pgErr) && pgErr.Code == "57014") {
		return fmt.Sprintf("%s failed: query timed out", op)
	}

	logger.Error("tool failed",
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
	return fmt.Sprintf("%s failed: internal error (check server logs)", op)
}
