package sshfront

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/chartered-rs/chartered-git-index/internal/gitobject"
)

// capabilities advertised per spec.md §4.F/§6. ofs-delta is advertised for
// client compatibility but never produced — the synthesizer never has a
// base object to diff against (spec.md §4.B).
const capabilities = "multi_ack side-band-64k ofs-delta agent=chartered-git-index/1.0"

const sidebandData = 0x01

// UploadPack drives the full git-upload-pack exchange over ch: reference
// advertisement, want/have negotiation, a NAK reply, and packfile delivery
// (spec.md §4.F steps 1-4). commitHash is both HEAD and refs/heads/master;
// pack is the already-built packfile bytes for that commit (spec.md §4.G
// step 6 — the commit must already be computed before this is called,
// since the client may immediately `want` it). negotiateCtx bounds the
// want/have/done read loop (spec.md §5 "negotiation phase SHOULD have a
// bounded timeout") — a client that never sends `done` gets its connection
// failed rather than held open forever.
func UploadPack(negotiateCtx context.Context, ch io.ReadWriter, commitHash gitobject.Hash, pack []byte) error {
	if err := advertiseRefs(ch, commitHash); err != nil {
		return err
	}

	sideband, err := negotiate(negotiateCtx, ch)
	if err != nil {
		return err
	}

	if _, err := ch.Write(pktLine("NAK\n")); err != nil {
		return err
	}

	return deliverPack(ch, pack, sideband)
}

func advertiseRefs(w io.Writer, commit gitobject.Hash) error {
	hex := commit.String()
	lines := []byte{}
	lines = append(lines, pktLineBytes([]byte(fmt.Sprintf("%s HEAD\x00%s\n", hex, capabilities)))...)
	lines = append(lines, pktLineBytes([]byte(fmt.Sprintf("%s refs/heads/master\n", hex)))...)
	lines = append(lines, pktFlush()...)
	_, err := w.Write(lines)
	return err
}

// negotiate reads want/have lines until flush or "done", returning whether
// the client's first want line requested side-band-64k. have lines are
// accepted and ignored — the server always replies NAK (spec.md §4.F step
// 2: there is never a common base to acknowledge against). The read loop
// runs on its own goroutine so a client that stalls mid-negotiation (sends
// `want` then never `done`/flush) can't block the caller past ctx's
// deadline; the goroutine itself unblocks once the session's channel is
// torn down by the caller reacting to the timeout.
func negotiate(ctx context.Context, r io.Reader) (sideband bool, err error) {
	type result struct {
		sideband bool
		err      error
	}
	done := make(chan result, 1)
	go func() {
		sideband, err := negotiateBlocking(r)
		done <- result{sideband, err}
	}()

	select {
	case res := <-done:
		return res.sideband, res.err
	case <-ctx.Done():
		return false, fmt.Errorf("%w: negotiation timed out: %v", ErrProtocolError, ctx.Err())
	}
}

func negotiateBlocking(r io.Reader) (sideband bool, err error) {
	br := bufio.NewReader(r)
	sawWant := false

	for {
		line, err := readPktLine(br)
		if err != nil {
			return false, err
		}
		if line == nil {
			break
		}
		s := strings.TrimRight(string(line), "\n")

		if !sawWant && strings.HasPrefix(s, "want ") {
			payload, caps := stripCapabilities(s)
			_ = payload
			sideband = caps["side-band-64k"]
			sawWant = true
			continue
		}
		if strings.HasPrefix(s, "want ") || strings.HasPrefix(s, "have ") {
			continue
		}
		if s == "done" {
			break
		}
		return false, fmt.Errorf("%w: unexpected line %q", ErrProtocolError, s)
	}

	if !sawWant {
		return false, fmt.Errorf("%w: no want line received", ErrProtocolError)
	}
	return sideband, nil
}

func deliverPack(w io.Writer, pack []byte, sideband bool) error {
	if !sideband {
		if _, err := w.Write(pack); err != nil {
			return err
		}
		_, err := w.Write(pktFlush())
		return err
	}

	if err := writeSideband(w, sidebandData, pack); err != nil {
		return err
	}
	_, err := w.Write(pktFlush())
	return err
}
