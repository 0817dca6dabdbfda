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
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/substream/substream-control/pkg/auth"
	"github.com/substream/substream-control/pkg/config"
	"github.com/substream/substream-control/pkg/devserver"
	"github.com/substream/substream-control/pkg/livekit"
	"github.com/substream/substream-control/pkg/logger"
	"github.com/substream/substream-control/pkg/service"
	"github.com/substream/substream-control/pkg/utils"
)

const (
	devPlaceholderKey    = "devkey"
	devPlaceholderSecret = "secret"
)

func generateKeys(_ *cli.Context) error {
	apiKey, secret := utils.NewAPIKeyPair()
	fmt.Fprintln(stdout, "API Key: ", apiKey)
	fmt.Fprintln(stdout, "API Secret: ", secret)
	return nil
}

func getClient(c *cli.Context) (*service.Client, error) {
	conf, err := getConfig(c)
	if err != nil {
		return nil, errors.Wrap(err, "get config")
	}
	return service.NewClientFromConfig(conf, nil)
}

func createToken(c *cli.Context) error {
	conf, err := getConfig(c)
	if err != nil {
		return errors.Wrap(err, "get config")
	}
	if err = conf.ValidateCredentials(); err != nil {
		return err
	}

	room := c.String("room")
	grant := auth.ParticipantGrant(room)
	if c.Bool("viewer") {
		grant = auth.ViewerGrant(room)
	}

	at := auth.NewAccessToken(conf.APIKey, conf.APISecret).
		AddGrant(grant).
		SetIdentity(c.String("identity")).
		SetName(c.String("name")).
		SetMetadata(c.String("metadata")).
		SetValidFor(c.Duration("valid-for"))
	if conf.Audience != "" {
		at.SetAudience(conf.Audience)
	}

	cred, err := at.Credential()
	if err != nil {
		return err
	}

	if c.Bool("json") {
		PrintJSON(map[string]any{
			"token":     cred.Token(),
			"identity":  cred.Identity,
			"notBefore": cred.NotBefore.Unix(),
			"expiry":    cred.Expiry.Unix(),
		})
		return nil
	}
	fmt.Fprintln(stdout, "Token:", cred.Token())
	fmt.Fprintf(stdout, "Valid from %s until %s\n", cred.NotBefore.Format("2006-01-02 15:04:05 MST"), cred.Expiry.Format("2006-01-02 15:04:05 MST"))
	return nil
}

func createIngress(c *cli.Context) error {
	inputType, err := livekit.ParseIngressInput(c.String("input-type"))
	if err != nil {
		return err
	}
	client, err := getClient(c)
	if err != nil {
		return err
	}

	req := &livekit.CreateIngressRequest{
		InputType:           inputType,
		Name:                c.String("name"),
		RoomName:            c.String("room"),
		ParticipantIdentity: c.String("identity"),
		ParticipantName:     c.String("participant-name"),
		BypassTranscoding:   c.Bool("bypass-transcoding"),
	}

	var info *livekit.IngressInfo
	if c.Bool("replace") {
		info, err = client.ReplaceIngress(c.Context, req)
	} else {
		info, err = client.CreateIngress(c.Context, req)
	}
	if err != nil {
		return err
	}

	if c.Bool("json") {
		PrintJSON(info)
		return nil
	}
	printIngress([]*livekit.IngressInfo{info})
	return nil
}

func listIngress(c *cli.Context) error {
	client, err := getClient(c)
	if err != nil {
		return err
	}
	items, err := client.ListIngress(c.Context, &livekit.ListIngressRequest{
		RoomName:  c.String("room"),
		IngressID: c.String("id"),
	})
	if err != nil {
		return err
	}

	if c.Bool("json") {
		PrintJSON(items)
		return nil
	}
	printIngress(items)
	return nil
}

func deleteIngress(c *cli.Context) error {
	client, err := getClient(c)
	if err != nil {
		return err
	}

	ingressID := c.String("id")
	if _, err = client.DeleteIngress(c.Context, ingressID); err != nil {
		if service.IsNotFound(err) {
			fmt.Fprintln(stdout, "ingress", ingressID, "does not exist")
			return nil
		}
		return err
	}
	fmt.Fprintln(stdout, "deleted ingress", ingressID)
	return nil
}

func probeIngressTypes(c *cli.Context) error {
	var types []livekit.IngressInput
	for _, s := range c.StringSlice("type") {
		for _, part := range strings.Split(s, ",") {
			t, err := livekit.ParseIngressInput(strings.TrimSpace(part))
			if err != nil {
				return err
			}
			types = append(types, t)
		}
	}

	client, err := getClient(c)
	if err != nil {
		return err
	}
	results, err := client.ProbeSupportedInputTypes(c.Context, types...)
	if err != nil {
		return err
	}

	if c.Bool("json") {
		out := make(map[string]string, len(results))
		for t, res := range results {
			out[t.String()] = res.Status.String()
		}
		PrintJSON(out)
		return nil
	}
	printProbeResults(results)
	return nil
}

func listRooms(c *cli.Context) error {
	client, err := getClient(c)
	if err != nil {
		return err
	}
	rooms, err := client.ListRooms(c.Context, c.StringSlice("name")...)
	if err != nil {
		return err
	}

	if c.Bool("json") {
		PrintJSON(rooms)
		return nil
	}
	printRooms(rooms)
	return nil
}

func listParticipants(c *cli.Context) error {
	client, err := getClient(c)
	if err != nil {
		return err
	}
	participants, err := client.ListParticipants(c.Context, c.String("room"))
	if err != nil {
		return err
	}

	if c.Bool("json") {
		PrintJSON(participants)
		return nil
	}
	printParticipants(participants)
	return nil
}

func startDevServer(c *cli.Context) error {
	conf, err := getConfig(c)
	if err != nil {
		return errors.Wrap(err, "get config")
	}

	if conf.DevServer.KeyFile == "" && len(conf.DevServer.Keys) == 0 {
		if !conf.Development {
			return &config.ConfigurationError{Field: "dev_server.keys", Reason: "set --keys or dev_server.key_file, or run with --dev"}
		}
		logger.Infow("no keys provided, using placeholder keys", "apiKey", devPlaceholderKey)
		fmt.Fprintf(stdout, "API Key: %s\nAPI Secret: %s\n", devPlaceholderKey, devPlaceholderSecret)
		conf.DevServer.Keys = map[string]string{
			devPlaceholderKey: devPlaceholderSecret,
		}
	}
	for _, t := range conf.DevServer.SupportedInputTypes {
		if !slices.Contains(livekit.AllIngressInputs, livekit.IngressInput(t)) {
			logger.Warnw("supported input type is not a platform value", nil, "inputType", t)
		}
	}

	server, err := devserver.NewServer(conf)
	if err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		sig := <-sigChan
		logger.Infow("exit requested, shutting down", "signal", sig)
		server.Stop()
	}()

	return server.Start()
}
