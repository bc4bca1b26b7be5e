package version

import (
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestColoredWithoutColor(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	orig := Version
	t.Cleanup(func() { Version = orig })

	cases := map[string]string{
		"0.1.0-dev":            "0.1.0-dev",
		"1.2.3":                "1.2.3",
		"1.2.3-rc.1+build.123": "1.2.3-rc.1+build.123",
		"nightly":              "nightly",
		"":                     "dev",
	}
	for in, want := range cases {
		Version = in
		assert.Equal(t, want, Colored(), in)
	}
}

func TestColoredWrapsComponents(t *testing.T) {
	prev := color.NoColor
	color.NoColor = false
	t.Cleanup(func() { color.NoColor = prev })

	orig := Version
	t.Cleanup(func() { Version = orig })
	Version = "2.0.1-beta"

	out := Colored()
	assert.Contains(t, out, "\x1b[")
	assert.Contains(t, out, "-beta")
	assert.NotEqual(t, "2.0.1-beta", out)
}
