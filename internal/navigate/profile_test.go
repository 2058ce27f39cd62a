package navigate_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shpitdev/movement-enricher/internal/locate"
	"github.com/shpitdev/movement-enricher/internal/navigate"
)

func TestDefaultProfile_SubviewHasScriptFallback(t *testing.T) {
	t.Parallel()

	p := navigate.DefaultProfile(navigate.Timeouts{})
	for _, target := range []locate.Target{p.MovementMenu, p.MovementSubview} {
		require.Len(t, target.Strategies, 2, target.Name)
		x, ok := target.Strategies[0].(locate.XPath)
		require.True(t, ok)
		require.True(t, x.Clickable)
		require.Equal(t, 5*time.Second, x.Timeout)
		_, ok = target.Strategies[1].(locate.Script)
		require.True(t, ok)
	}
	x := p.SearchInput.Strategies[0].(locate.XPath)
	require.Equal(t, 10*time.Second, x.Timeout)
	require.False(t, x.Clickable)
}

func TestParseProfile_OverridesNamedTargets(t *testing.T) {
	t.Parallel()

	base := navigate.DefaultProfile(navigate.DefaultTimeouts())
	doc := []byte(`
targets:
  first_result:
    - xpath: //table[@id='results']//a
      timeout: 3s
    - script: "#results a"
`)
	p, err := navigate.ParseProfile(doc, base)
	require.NoError(t, err)

	require.Equal(t, []locate.Strategy{
		locate.XPath{Expr: "//table[@id='results']//a", Timeout: 3 * time.Second},
		locate.Script{Selector: "#results a", Timeout: 2 * time.Second},
	}, p.FirstResult.Strategies)
	require.Equal(t, navigate.TargetFirstResult, p.FirstResult.Name)
	require.Equal(t, base.OpenMenu, p.OpenMenu)
}

func TestParseProfile_Rejects(t *testing.T) {
	t.Parallel()

	base := navigate.DefaultProfile(navigate.DefaultTimeouts())
	cases := map[string]string{
		"unknown target": "targets:\n  logout_button:\n    - xpath: //a\n",
		"no strategies":  "targets:\n  open_menu: []\n",
		"both set":       "targets:\n  open_menu:\n    - xpath: //a\n      script: a\n",
		"neither set":    "targets:\n  open_menu:\n    - timeout: 1s\n",
		"unknown field":  "targets:\n  open_menu:\n    - css: a\n",
	}
	for name, doc := range cases {
		doc := doc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := navigate.ParseProfile([]byte(doc), base)
			require.Error(t, err)
		})
	}
}

func TestLoadProfile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "locators.yaml")
	require.NoError(t, os.WriteFile(path, []byte("targets:\n  open_menu:\n    - xpath: //nav\n"), 0o600))

	p, err := navigate.LoadProfile(path, navigate.DefaultProfile(navigate.DefaultTimeouts()))
	require.NoError(t, err)
	require.Equal(t, "//nav", p.OpenMenu.Strategies[0].(locate.XPath).Expr)

	_, err = navigate.LoadProfile(filepath.Join(t.TempDir(), "missing.yaml"), navigate.Profile{})
	require.Error(t, err)
}
