package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/commentbot/internal/apperr"
	"github.com/shehryarbajwa/commentbot/internal/bot"
	"github.com/shehryarbajwa/commentbot/internal/logbus"
)

const home = "https://www.instagram.com/"

func TestValidateRun(t *testing.T) {
	ok := bot.RunParams{PostURL: "https://www.instagram.com/p/abc/", Comment: "nice", Count: 1}
	require.NoError(t, validateRun(ok, home))

	tests := []struct {
		name string
		edit func(*bot.RunParams)
	}{
		{"zero count", func(p *bot.RunParams) { p.Count = 0 }},
		{"negative count", func(p *bot.RunParams) { p.Count = -3 }},
		{"blank comment", func(p *bot.RunParams) { p.Comment = "  " }},
		{"not a url", func(p *bot.RunParams) { p.PostURL = "instagram post" }},
		{"other site", func(p *bot.RunParams) { p.PostURL = "https://example.com/p/abc/" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ok
			tt.edit(&p)
			err := validateRun(p, home)
			assert.True(t, errors.Is(err, apperr.ErrValidation), "got %v", err)
		})
	}
}

func TestValidateRun_BareHost(t *testing.T) {
	p := bot.RunParams{PostURL: "https://instagram.com/reel/xyz/", Comment: "hi", Count: 2}
	assert.NoError(t, validateRun(p, home))
}

func TestConsoleSink(t *testing.T) {
	var out bytes.Buffer
	log := logbus.For(consoleSink{out: &out}, "alice")

	log.Warn("slow page")
	log.Finished(true)

	assert.Contains(t, out.String(), "WARNING [")
	assert.Contains(t, out.String(), "] slow page")
	assert.Equal(t, 1, strings.Count(out.String(), "\n"))
}

func TestConfirm(t *testing.T) {
	var out bytes.Buffer
	assert.True(t, confirm(strings.NewReader("Y\n"), &out, "Continue? "))
	assert.Equal(t, "Continue? ", out.String())

	assert.False(t, confirm(strings.NewReader("n\n"), io.Discard, ""))
	assert.False(t, confirm(strings.NewReader(""), io.Discard, ""))
}

func TestWaitForEnter(t *testing.T) {
	require.NoError(t, waitForEnter(context.Background(), bufio.NewReader(strings.NewReader("\n"))))
	require.NoError(t, waitForEnter(context.Background(), bufio.NewReader(strings.NewReader(""))))

	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := waitForEnter(ctx, bufio.NewReader(pr))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
