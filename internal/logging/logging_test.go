// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package logging_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mellium.im/jingle/internal/logging"
)

func TestConfigure(t *testing.T) {
	var buf bytes.Buffer
	l := logging.Configure(logging.Config{Level: "warn", Output: &buf, Service: "test"})

	l.Info().Msg("dropped")
	assert.Zero(t, buf.Len(), "info should be filtered at warn level")

	pl := logging.WithComponent(logging.Base(), "pipeline")
	pl.Warn().Str(logging.FieldSID, "s1").Msg("kept")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "test", entry["service"])
	assert.Equal(t, "pipeline", entry[logging.FieldComponent])
	assert.Equal(t, "s1", entry[logging.FieldSID])
	assert.Equal(t, "kept", entry["message"])
}
