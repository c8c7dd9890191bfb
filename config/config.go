/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package config implements Config (§4.12): process-wide defaults for
// community, timeout, retries, port, version, mib_paths and
// auto_start_services, merged defaults <- environment <- explicit.
package config

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	libval "github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	liberr "github.com/nabbar/snmpmgr/errors"
)

// Defaults per §4.12 / §6, used when neither the environment nor an
// explicit override supplies a value.
const (
	DefaultCommunity = "public"
	DefaultTimeout   = 3 * time.Second
	DefaultRetries   = 1
	DefaultPort      = 161
	DefaultVersion   = "v2c"
)

// Values is one resolved, immutable snapshot of the process-wide
// defaults.
type Values struct {
	Community         string        `validate:"required"`
	Timeout           time.Duration `validate:"gt=0"`
	Retries           int           `validate:"gte=0"`
	Port              int           `validate:"gt=0,lte=65535"`
	Version           string        `validate:"oneof=v1 v2c"`
	MibPaths          []string
	AutoStartServices bool
}

// Validate reports whether v's fields satisfy their struct constraints,
// wrapping every violation as a parent of a single ErrInvalidConfig
// (nil if v is valid) - e.g. a non-positive Timeout, an out-of-range
// Port, a negative Retries or an unknown Version string left over
// after Merge/resolve composed defaults, environment and explicit
// overrides.
func (v Values) Validate() liberr.Error {
	var e = liberr.ErrInvalidConfig.Error(nil)

	if err := libval.New().Struct(v); err != nil {
		if er, ok := err.(*libval.InvalidValidationError); ok {
			e.Add(er)
		}
		for _, er := range err.(libval.ValidationErrors) {
			e.Add(fmt.Errorf("config field '%s' is not validated by constraint '%s'", er.Namespace(), er.ActualTag()))
		}
	}

	if !e.HasParent() {
		e = nil
	}
	return e
}

func hardDefaults() Values {
	return Values{
		Community: DefaultCommunity,
		Timeout:   DefaultTimeout,
		Retries:   DefaultRetries,
		Port:      DefaultPort,
		Version:   DefaultVersion,
	}
}

// Overrides is what an explicit caller may supply to Merge; a nil
// pointer field means "not specified by this caller", so the
// environment or hard default shows through instead.
type Overrides struct {
	Community         *string
	Timeout           *time.Duration
	Retries           *int
	Port              *int
	Version           *string
	MibPaths          []string
	AutoStartServices *bool
}

// Config holds one process-wide Values snapshot, replaceable under
// Merge/Reload but always read lock-free via an atomic.Value (§4.12:
// "Reads are lock-free after init").
type Config struct {
	v    *viper.Viper
	snap atomic.Value // Values
}

// EnvPrefix is the prefix every environment variable is bound under,
// e.g. SNMPMGR_COMMUNITY, SNMPMGR_TIMEOUT, SNMPMGR_AUTO_START_SERVICES.
const EnvPrefix = "SNMPMGR"

// New builds a Config from hard defaults composed with whatever the
// environment supplies (§4.12: "defaults <- environment <- explicit").
func New() *Config {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	c := &Config{v: v}
	start := c.resolve(Overrides{})
	if start.Validate() != nil {
		start = hardDefaults()
	}
	c.snap.Store(start)
	return c
}

func (c *Config) resolve(o Overrides) Values {
	out := hardDefaults()

	if s := c.v.GetString("community"); s != "" {
		out.Community = s
	}
	if d := c.v.GetDuration("timeout"); d > 0 {
		out.Timeout = d
	}
	if r := c.v.GetInt("retries"); c.v.IsSet("retries") {
		out.Retries = r
	}
	if p := c.v.GetInt("port"); c.v.IsSet("port") {
		out.Port = p
	}
	if s := c.v.GetString("version"); s != "" {
		out.Version = s
	}
	if paths := c.v.GetStringSlice("mib_paths"); len(paths) > 0 {
		out.MibPaths = paths
	}
	if c.v.IsSet("auto_start_services") {
		out.AutoStartServices = c.v.GetBool("auto_start_services")
	}

	if o.Community != nil {
		out.Community = *o.Community
	}
	if o.Timeout != nil {
		out.Timeout = *o.Timeout
	}
	if o.Retries != nil {
		out.Retries = *o.Retries
	}
	if o.Port != nil {
		out.Port = *o.Port
	}
	if o.Version != nil {
		out.Version = *o.Version
	}
	if o.MibPaths != nil {
		out.MibPaths = o.MibPaths
	}
	if o.AutoStartServices != nil {
		out.AutoStartServices = *o.AutoStartServices
	}

	return out
}

// Values returns the current resolved snapshot - defaults merged with
// whatever the environment supplied at New/Reload time, with no
// per-call overrides applied.
func (c *Config) Values() Values {
	return c.snap.Load().(Values)
}

// Merge composes defaults <- environment <- o, where o's non-nil
// fields win. It does not mutate Config's stored snapshot - it
// returns the one-off result for this caller's operation, since
// explicit opts are a per-call concern, not a process-wide one. The
// merged result is validated before being returned, so a caller
// override that resolves to a non-positive Timeout, negative Retries,
// out-of-range Port or unrecognised Version is rejected here rather
// than surfacing later as an obscure wire-level failure.
func (c *Config) Merge(o Overrides) (Values, error) {
	v := c.resolve(o)
	if e := v.Validate(); e != nil {
		return Values{}, e
	}
	return v, nil
}

// Reload re-reads the environment into the stored snapshot, e.g. after
// process environment variables changed underneath a long-lived
// Config (tests, or a supervisor that re-execs with new env). A
// resolve that fails validation - a malformed environment variable -
// leaves the last known-good snapshot in place rather than storing a
// broken one.
func (c *Config) Reload() {
	v := c.resolve(Overrides{})
	if v.Validate() != nil {
		return
	}
	c.snap.Store(v)
}

// WatchFile is the optional live-reload path §4.12 leaves open: file
// and flag loading are out of scope, but an embedder that does keep a
// config file on disk can opt into picking up its changes without
// restarting. Every write fsnotify reports re-resolves the stored
// snapshot from environment + file; onChange, if non-nil, is called
// after each reload.
func (c *Config) WatchFile(path string, onChange func()) error {
	c.v.SetConfigFile(path)
	if err := c.v.ReadInConfig(); err != nil {
		return err
	}
	c.Reload()

	c.v.OnConfigChange(func(_ fsnotify.Event) {
		c.Reload()
		if onChange != nil {
			onChange()
		}
	})
	c.v.WatchConfig()
	return nil
}
