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
	"encoding/csv"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// FromCSV reads a headed CSV table and splits it into coordinates and
// observations. coordCols name the coordinate columns, in order; valueCols
// name the observed variables. Empty observation cells become NaN (missing),
// while coordinates must parse on every row. The returned matrix is
// len×len(valueCols), ready to feed a model alongside the point set.
func FromCSV(r io.Reader, coordCols, valueCols []string) (*Points, *mat.Dense, error) {
	if len(coordCols) == 0 {
		return nil, nil, errors.New("pointset: no coordinate columns given")
	}

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if err != nil {
		return nil, nil, errors.Wrap(err, "pointset: reading CSV header")
	}

	coordIdx, err := columnIndices(header, coordCols)
	if err != nil {
		return nil, nil, err
	}
	valueIdx, err := columnIndices(header, valueCols)
	if err != nil {
		return nil, nil, err
	}

	var coords, values []float64
	row := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, errors.Wrapf(err, "pointset: reading CSV row %d", row+1)
		}
		row++
		for _, idx := range coordIdx {
			v, err := strconv.ParseFloat(strings.TrimSpace(record[idx]), 64)
			if err != nil {
				return nil, nil, errors.Wrapf(err, "pointset: row %d, coordinate column %q",
					row, header[idx])
			}
			coords = append(coords, v)
		}
		for _, idx := range valueIdx {
			cell := strings.TrimSpace(record[idx])
			if cell == "" {
				values = append(values, math.NaN())
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, nil, errors.Wrapf(err, "pointset: row %d, value column %q",
					row, header[idx])
			}
			values = append(values, v)
		}
	}
	if row == 0 {
		return nil, nil, errors.New("pointset: CSV has no data rows")
	}

	ps := FromSlice(row, len(coordCols), coords)
	var y *mat.Dense
	if len(valueCols) > 0 {
		y = mat.NewDense(row, len(valueCols), values)
	}
	return ps, y, nil
}

func columnIndices(header, names []string) ([]int, error) {
	idx := make([]int, len(names))
	for i, name := range names {
		found := -1
		for j, h := range header {
			if strings.TrimSpace(h) == name {
				found = j
				break
			}
		}
		if found < 0 {
			return nil, errors.Errorf("pointset: column %q not in CSV header %v", name, header)
		}
		idx[i] = found
	}
	return idx, nil
}
