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

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"github.com/substream/substream-control/pkg/livekit"
	"github.com/substream/substream-control/pkg/service"
)

var stdout io.Writer = os.Stdout

func PrintJSON(obj interface{}) {
	txt, _ := json.MarshalIndent(obj, "", "  ")
	fmt.Fprintln(stdout, string(txt))
}

func newTable(header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(stdout)
	table.SetRowLine(true)
	table.SetAutoWrapText(false)
	table.SetHeader(header)
	return table
}

func printIngress(items []*livekit.IngressInfo) {
	table := newTable("ID", "Name", "Type", "Room", "Identity", "URL", "Stream Key", "Status")
	for _, info := range items {
		room := info.RoomName
		if info.DynamicRoom() {
			room = "(dynamic)"
		}
		status := ""
		if info.State != nil {
			status = string(info.State.Status)
		}
		table.Append([]string{
			info.IngressID,
			info.Name,
			info.InputTypeLabel(),
			room,
			info.ParticipantIdentity,
			info.URL,
			info.StreamKey,
			status,
		})
	}
	table.Render()
}

func printProbeResults(results map[livekit.IngressInput]*service.ProbeResult) {
	types := make([]livekit.IngressInput, 0, len(results))
	for t := range results {
		types = append(types, t)
	}
	slices.Sort(types)

	table := newTable("Value", "Input Type", "Status", "Reason", "Cleanup")
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_CENTER,
		tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT,
	})
	for _, t := range types {
		res := results[t]
		cleanup := ""
		if res.CleanupErr != nil {
			cleanup = fmt.Sprintf("left %s: %v", res.IngressID, res.CleanupErr)
		}
		table.Append([]string{
			strconv.Itoa(int(t)),
			t.String(),
			res.Status.String(),
			res.Reason,
			cleanup,
		})
	}
	table.Render()
}

func printRooms(rooms []*livekit.Room) {
	table := newTable("SID", "Name", "Participants", "Publishers", "Created")
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_LEFT,
	})
	for _, room := range rooms {
		table.Append([]string{
			room.Sid,
			room.Name,
			humanize.Comma(int64(room.NumParticipants)),
			humanize.Comma(int64(room.NumPublishers)),
			humanize.Time(room.CreatedAt()),
		})
	}
	table.Render()
}

func printParticipants(participants []*livekit.ParticipantInfo) {
	table := newTable("SID", "Identity", "Name", "State", "Publisher", "Joined")
	for _, p := range participants {
		table.Append([]string{
			p.Sid,
			p.Identity,
			p.Name,
			string(p.State),
			strconv.FormatBool(p.IsPublisher),
			humanize.Time(time.Unix(int64(p.JoinedAt), 0)),
		})
	}
	table.Render()
}
