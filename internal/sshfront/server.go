// Package sshfront implements the SSH smart-protocol front-end: it accepts
// connections, authenticates by public key, dispatches git-upload-pack, and
// speaks the pkt-line ref-advertisement / want-have / packfile phases
// (spec.md §4.F). Grounded on the teacher's internal/gitinterop/protocol.go
// handleUploadPack state machine, re-targeted from an HTTP request body to
// an SSH exec channel, plus github.com/gliderlabs/ssh for the transport
// itself (the teacher has no SSH server; this is the pack's only complete
// reference for one, via other_examples/manifests' go.mod entries).
package sshfront

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chartered-rs/chartered-git-index/internal/cargoindex"
	"github.com/chartered-rs/chartered-git-index/internal/database"
	"github.com/chartered-rs/chartered-git-index/internal/fetch"
	"github.com/chartered-rs/chartered-git-index/internal/vrepo"
	"github.com/gliderlabs/ssh"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	gossh "golang.org/x/crypto/ssh"
)

// tracer emits one span per fetch (SPEC_FULL.md §6's "OpenTelemetry tracing
// around each fetch"); a no-op tracer provider is installed when
// Observability.OTLPEndpoint is unset, so this has zero cost by default.
var tracer = otel.Tracer("github.com/chartered-rs/chartered-git-index/internal/sshfront")

// Server bundles the collaborators a git-upload-pack session needs.
type Server struct {
	DB     database.DB
	Config fetch.RegistryConfig
	Now    fetch.Clock
	Logger *slog.Logger

	AuthTimeout      time.Duration
	NegotiateTimeout time.Duration
	RequestTimeout   time.Duration

	Metrics *Metrics

	ssh *ssh.Server
}

// userCtxKey is the ssh.Context value key the PublicKeyHandler stores the
// authenticated user id under, read back by the session handler.
type userKeyType struct{}

var userCtxKey = userKeyType{}

// NewServer wires a gliderlabs/ssh.Server bound to addr, using hostKeyPath
// as its host key (spec.md §6 "host SSH key path").
func NewServer(addr, hostKeyPath string, s *Server) (*Server, error) {
	s.ssh = &ssh.Server{
		Addr:             addr,
		Handler:          s.handleSession,
		PublicKeyHandler: s.handlePublicKey,
	}
	if err := s.ssh.SetOption(ssh.HostKeyFile(hostKeyPath)); err != nil {
		return nil, fmt.Errorf("sshfront: load host key: %w", err)
	}
	return s, nil
}

// ListenAndServe blocks accepting connections until the listener errors or
// is closed.
func (s *Server) ListenAndServe() error {
	return s.ssh.ListenAndServe()
}

// Close shuts the listener down and closes every active connection
// immediately, in-flight sessions included.
func (s *Server) Close() error {
	return s.ssh.Close()
}

// handlePublicKey authenticates by SSH public key only (spec.md §4.F): the
// fingerprint of the offered key must match a registered ssh_keys row. On
// success the owning user id is stashed on the context for handleSession.
// A lookup failure is classified per spec.md §7: no matching row is
// ErrAuthFailure, anything else from the persistence layer is
// ErrDatabaseError — both are logged before the handler fails closed.
func (s *Server) handlePublicKey(ctx ssh.Context, key ssh.PublicKey) bool {
	authCtx, cancel := context.WithTimeout(ctx, s.authTimeout())
	defer cancel()

	fingerprint := gossh.FingerprintSHA256(key)
	sshKey, err := s.DB.GetSSHKeyByFingerprint(authCtx, fingerprint)
	if err != nil {
		if s.Metrics != nil {
			s.Metrics.AuthFailures.Inc()
		}
		if errors.Is(err, sql.ErrNoRows) {
			s.logf("%v: fingerprint %s not registered", ErrAuthFailure, fingerprint)
		} else {
			s.logf("%v: %v", ErrDatabaseError, err)
		}
		return false
	}
	ctx.SetValue(userCtxKey, sshKey.UserID)
	return true
}

func (s *Server) authTimeout() time.Duration {
	if s.AuthTimeout > 0 {
		return s.AuthTimeout
	}
	return 10 * time.Second
}

func (s *Server) negotiateTimeout() time.Duration {
	if s.NegotiateTimeout > 0 {
		return s.NegotiateTimeout
	}
	return 10 * time.Second
}

func (s *Server) requestTimeout() time.Duration {
	if s.RequestTimeout > 0 {
		return s.RequestTimeout
	}
	return 30 * time.Second
}

// handleSession parses the exec command, resolves it to a git-upload-pack
// request for an organization, and drives the protocol exchange. Anything
// other than git-upload-pack closes the channel with a non-zero exit
// (spec.md §6 "Unknown commands cause the channel to close with a non-zero
// exit status.").
func (s *Server) handleSession(session ssh.Session) {
	started := time.Now()
	userID, _ := session.Context().Value(userCtxKey).(int64)

	cmd := strings.Join(session.Command(), " ")
	orgName, ok := parseUploadPackCommand(cmd)
	if !ok {
		fmt.Fprintln(session.Stderr(), "unknown command")
		session.Exit(1)
		return
	}

	ctx, cancel := context.WithTimeout(session.Context(), s.requestTimeout())
	defer cancel()

	ctx, span := tracer.Start(ctx, "fetch", trace.WithAttributes(attribute.String("org", orgName)))
	defer span.End()

	commitHash, pack, err := fetch.Assemble(ctx, s.DB, userID, orgName, s.Config, s.Now)
	if err != nil {
		stderrMsg := "fetch failed"
		switch {
		case errors.Is(err, cargoindex.ErrUnknownOrganization):
			err = fmt.Errorf("%w: %v", ErrUnknownOrganization, err)
			stderrMsg = "unknown organization"
		case errors.Is(err, fetch.ErrOversizeIndex):
			err = fmt.Errorf("%w: %v", ErrOversizeIndex, err)
			stderrMsg = "index too large"
		case errors.Is(err, vrepo.ErrInvalidPath):
			err = fmt.Errorf("%w: %v", ErrInvalidPath, err)
		default:
			err = fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		s.logf("assemble failed for org %q: %v", orgName, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "assemble failed")
		if s.Metrics != nil {
			s.Metrics.FetchErrors.Inc()
		}
		fmt.Fprintln(session.Stderr(), stderrMsg)
		session.Exit(1)
		return
	}

	negotiateCtx, negCancel := context.WithTimeout(ctx, s.negotiateTimeout())
	defer negCancel()

	if err := UploadPack(negotiateCtx, session, commitHash, pack); err != nil {
		s.logf("upload-pack failed for org %q: %v", orgName, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload-pack failed")
		session.Exit(1)
		return
	}

	if s.Metrics != nil {
		s.Metrics.FetchDuration.Observe(time.Since(started).Seconds())
		s.Metrics.PackBytes.Observe(float64(len(pack)))
	}
	session.Exit(0)
}

// parseUploadPackCommand recognizes `git-upload-pack '<org>'` (and the
// unquoted / double-quoted variants spec.md §6 tolerates), stripping a
// leading slash from the argument.
func parseUploadPackCommand(cmd string) (org string, ok bool) {
	const prefix = "git-upload-pack "
	if !strings.HasPrefix(cmd, prefix) {
		return "", false
	}
	arg := strings.TrimSpace(strings.TrimPrefix(cmd, prefix))
	arg = strings.Trim(arg, "'\"")
	arg = strings.TrimPrefix(arg, "/")
	if arg == "" {
		return "", false
	}
	return arg, true
}

func (s *Server) logf(format string, args ...any) {
	if s.Logger == nil {
		return
	}
	s.Logger.Error(fmt.Sprintf(format, args...))
}
