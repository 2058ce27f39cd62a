package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shpitdev/movement-enricher/internal/session"
)

func TestChoosePage(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		urls   []string
		prefer string
		want   int
	}{
		{name: "preferred", urls: []string{"https://mail.example", "https://discricionarias.transferegov.sistema.gov.br/x"}, prefer: "transferegov", want: 1},
		{name: "first web page", urls: []string{"chrome://newtab/", "https://a.example"}, prefer: "transferegov", want: 1},
		{name: "anything", urls: []string{"chrome://newtab/"}, want: 0},
		{name: "none", want: -1},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, choosePage(tc.urls, tc.prefer))
		})
	}
}

func TestNotFound(t *testing.T) {
	t.Parallel()

	q := session.Query{By: session.ByXPath, Expr: "//table"}

	err := notFound(context.Background(), q, time.Second, context.DeadlineExceeded)
	require.ErrorIs(t, err, session.ErrNotFound)
	require.Contains(t, err.Error(), "xpath://table")

	err = notFound(context.Background(), q, time.Second, errors.New("websocket closed"))
	require.NotErrorIs(t, err, session.ErrNotFound)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, notFound(ctx, q, time.Second, context.DeadlineExceeded), context.Canceled)
}

func TestNewSessionBoundsEveryCall(t *testing.T) {
	t.Parallel()

	s := newSession(nil, nil, Options{}, nil)
	require.Equal(t, DefaultActionTimeout, s.actionTimeout)
	require.Equal(t, DefaultLoadTimeout, s.loadTimeout)

	s = newSession(nil, nil, Options{ActionTimeout: time.Second, LoadTimeout: 2 * time.Second}, nil)
	require.Equal(t, time.Second, s.actionTimeout)
	require.Equal(t, 2*time.Second, s.loadTimeout)
}
