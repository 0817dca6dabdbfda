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

// IngressInput is the platform's integer selector for an ingress input type.
// The integer is authoritative: values without a name here are carried
// through unchanged, never rejected.
type IngressInput int32

const (
	URLInput  IngressInput = 0 // pulls media from a URL
	WHIPInput IngressInput = 1 // accepts a WHIP push
	SIPInput  IngressInput = 4 // accepts a SIP push
)

// 2 and 3 are reserved by the platform and intentionally left unnamed.

// UnspecifiedInput stands for a type without a numeric value: one the
// platform reported only by name, or one the caller does not know. It is
// never sent.
const UnspecifiedInput IngressInput = -1

// names for the values above, used for display and CLI input only. Names
// received on the wire are never mapped back to numbers.
var ingressInputNames = map[IngressInput]string{
	URLInput:  "URL_INPUT",
	WHIPInput: "WHIP_INPUT",
	SIPInput:  "SIP_INPUT",
}

// AllIngressInputs is every value the platform currently accepts on the wire,
// named or not. It is the default set checked for availability.
var AllIngressInputs = []IngressInput{0, 1, 2, 3, 4}

// Known reports whether the value has a named meaning.
func (i IngressInput) Known() bool {
	_, ok := ingressInputNames[i]
	return ok
}

func (i IngressInput) String() string {
	if name, ok := ingressInputNames[i]; ok {
		return name
	}
	if i == UnspecifiedInput {
		return "UNSPECIFIED_INPUT"
	}
	return fmt.Sprintf("UNKNOWN_INPUT(%d)", int32(i))
}

func (i IngressInput) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(int64(i), 10)), nil
}

// UnmarshalJSON keeps integers as they are. A name decodes to
// UnspecifiedInput; IngressInfo keeps the name itself.
func (i *IngressInput) UnmarshalJSON(data []byte) error {
	v, _, err := decodeIngressInput(data)
	if err != nil {
		return err
	}
	*i = v
	return nil
}

func decodeIngressInput(data []byte) (IngressInput, string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return URLInput, "", nil
	}

	var n int32
	if err := json.Unmarshal(data, &n); err == nil {
		return IngressInput(n), "", nil
	}

	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return 0, "", fmt.Errorf("input_type: %w", err)
	}
	if n, err := strconv.ParseInt(name, 10, 32); err == nil {
		return IngressInput(n), "", nil
	}
	return UnspecifiedInput, name, nil
}

// ParseIngressInput reads a type given on the command line: one of the names
// above or a decimal integer.
func ParseIngressInput(s string) (IngressInput, error) {
	for v, name := range ingressInputNames {
		if name == s {
			return v, nil
		}
	}
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("unrecognized ingress input type %q", s)
	}
	return IngressInput(n), nil
}

type IngressState struct {
	Status    IngressStatus `json:"status"`
	Error     string        `json:"error,omitempty"`
	RoomID    string        `json:"room_id,omitempty"`
	StartedAt Int64         `json:"started_at,omitempty"`
	EndedAt   Int64         `json:"ended_at,omitempty"`
}

// IngressStatus is decoded from either the enum name or its number.
type IngressStatus string

const (
	IngressEndpointInactive   IngressStatus = "ENDPOINT_INACTIVE"
	IngressEndpointBuffering  IngressStatus = "ENDPOINT_BUFFERING"
	IngressEndpointPublishing IngressStatus = "ENDPOINT_PUBLISHING"
	IngressEndpointError      IngressStatus = "ENDPOINT_ERROR"
	IngressEndpointComplete   IngressStatus = "ENDPOINT_COMPLETE"
)

var ingressStatusByNumber = []IngressStatus{
	IngressEndpointInactive,
	IngressEndpointBuffering,
	IngressEndpointPublishing,
	IngressEndpointError,
	IngressEndpointComplete,
}

func (s *IngressStatus) UnmarshalJSON(data []byte) error {
	name, err := decodeEnum(data, func(n int) (string, bool) {
		if n < 0 || n >= len(ingressStatusByNumber) {
			return "", false
		}
		return string(ingressStatusByNumber[n]), true
	})
	if err != nil {
		return err
	}
	*s = IngressStatus(name)
	return nil
}

// IngressInfo describes an ingress as the platform reports it. URL and
// StreamKey are only populated once the platform has created it.
type IngressInfo struct {
	IngressID           string        `json:"ingress_id"`
	Name                string        `json:"name"`
	StreamKey           string        `json:"stream_key"`
	URL                 string        `json:"url"`
	InputType           IngressInput  `json:"input_type"`
	// set with InputType == UnspecifiedInput when the platform sent a name
	InputTypeName       string        `json:"-"`
	RoomName            string        `json:"room_name"`
	ParticipantIdentity string        `json:"participant_identity"`
	ParticipantName     string        `json:"participant_name"`
	Reusable            bool          `json:"reusable,omitempty"`
	BypassTranscoding   bool          `json:"bypass_transcoding,omitempty"`
	State               *IngressState `json:"state,omitempty"`
}

func (i *IngressInfo) UnmarshalJSON(data []byte) error {
	type plain IngressInfo
	aux := struct {
		*plain
		InputType json.RawMessage `json:"input_type"`
	}{plain: (*plain)(i)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	i.InputType, i.InputTypeName, err = decodeIngressInput(aux.InputType)
	return err
}

// MarshalJSON writes a name-only input type back as the name it arrived as.
func (i IngressInfo) MarshalJSON() ([]byte, error) {
	type plain IngressInfo
	if i.InputTypeName == "" {
		return json.Marshal(plain(i))
	}
	return json.Marshal(struct {
		plain
		InputType string `json:"input_type"`
	}{plain(i), i.InputTypeName})
}

// InputTypeLabel is the platform's name for the input type when it sent one.
func (i *IngressInfo) InputTypeLabel() string {
	if i.InputTypeName != "" {
		return i.InputTypeName
	}
	return i.InputType.String()
}

// DynamicRoom reports whether the room is assigned when media connects.
func (i *IngressInfo) DynamicRoom() bool {
	return i.RoomName == ""
}

type CreateIngressRequest struct {
	InputType           IngressInput `json:"input_type"`
	Name                string       `json:"name"`
	RoomName            string       `json:"room_name"`
	ParticipantIdentity string       `json:"participant_identity"`
	ParticipantName     string       `json:"participant_name"`
	BypassTranscoding   bool         `json:"bypass_transcoding,omitempty"`
}

type ListIngressRequest struct {
	RoomName  string `json:"room_name,omitempty"`
	IngressID string `json:"ingress_id,omitempty"`
}

type ListIngressResponse struct {
	Items []*IngressInfo `json:"items"`
}

type DeleteIngressRequest struct {
	IngressID string `json:"ingress_id"`
}
