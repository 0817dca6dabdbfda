// Copyright 2023 LiveKit, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package livekit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Int64 accepts both JSON numbers and the quoted form protojson uses for
// 64-bit integers. It always encodes as a number.
type Int64 int64

func (v Int64) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(int64(v), 10)), nil
}

func (v *Int64) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*v = 0
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid int64 %q: %w", data, err)
	}
	*v = Int64(n)
	return nil
}

// decodeEnum reads an enum that may arrive as its name or its number.
// Numbers without a name are kept as their decimal string.
func decodeEnum(data []byte, byNumber func(int) (string, bool)) (string, error) {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		if name, ok := byNumber(n); ok {
			return name, nil
		}
		return strconv.Itoa(n), nil
	}
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return "", err
	}
	return name, nil
}
