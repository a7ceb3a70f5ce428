/*
 *	Copyright 2024 The geogp Authors
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

package pointset

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromCSV(t *testing.T) {
	const table = `x, y, grade, label
0, 0, 1.5, 1
1, 0, , 0
1, 2, 2.5, 1
`
	ps, obs, err := FromCSV(strings.NewReader(table), []string{"x", "y"}, []string{"grade", "label"})
	require.NoError(t, err)
	require.Equal(t, 3, ps.Len())
	require.Equal(t, 2, ps.NDim())
	require.Equal(t, 1.0, ps.Coordinates().At(1, 0))
	require.Equal(t, 2.0, ps.Coordinates().At(2, 1))

	require.Equal(t, 1.5, obs.At(0, 0))
	require.True(t, math.IsNaN(obs.At(1, 0)))
	require.Equal(t, 0.0, obs.At(1, 1))
}

func TestFromCSVCoordinatesOnly(t *testing.T) {
	const table = "x\n0.5\n1.5\n"
	ps, obs, err := FromCSV(strings.NewReader(table), []string{"x"}, nil)
	require.NoError(t, err)
	require.Equal(t, 2, ps.Len())
	require.Nil(t, obs)
}

func TestFromCSVErrors(t *testing.T) {
	_, _, err := FromCSV(strings.NewReader("x\n1\n"), nil, nil)
	require.Error(t, err)

	_, _, err = FromCSV(strings.NewReader("x\n1\n"), []string{"z"}, nil)
	require.ErrorContains(t, err, `column "z"`)

	_, _, err = FromCSV(strings.NewReader("x\nnope\n"), []string{"x"}, nil)
	require.ErrorContains(t, err, "coordinate column")

	_, _, err = FromCSV(strings.NewReader("x\n"), []string{"x"}, nil)
	require.ErrorContains(t, err, "no data rows")
}
