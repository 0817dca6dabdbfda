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

	"github.com/urfave/cli/v2"

	"github.com/substream/substream-control/pkg/config"
	"github.com/substream/substream-control/version"
)

var baseFlags = []cli.Flag{
	&cli.StringFlag{
		Name:  "config",
		Usage: "path to config file",
	},
	&cli.StringFlag{
		Name:    "config-body",
		Usage:   "config in YAML, typically passed in as an environment var in a container",
		EnvVars: []string{"SUBSTREAM_CONFIG"},
	},
	&cli.StringFlag{
		Name:    "url",
		Usage:   "project URL, ws(s):// or http(s)://",
		EnvVars: []string{"LIVEKIT_URL", "SUBSTREAM_URL"},
	},
	&cli.StringFlag{
		Name:    "api-key",
		Usage:   "API key used to sign credentials",
		EnvVars: []string{"LIVEKIT_API_KEY", "SUBSTREAM_API_KEY"},
	},
	&cli.StringFlag{
		Name:    "api-secret",
		Usage:   "API secret used to sign credentials",
		EnvVars: []string{"LIVEKIT_API_SECRET", "SUBSTREAM_API_SECRET"},
	},
	&cli.StringFlag{
		Name:  "audience",
		Usage: "optional aud claim added to issued credentials",
	},
	&cli.DurationFlag{
		Name:  "timeout",
		Usage: "per call timeout",
	},
	&cli.StringFlag{
		Name:    "keys",
		Usage:   "dev server api keys (key: secret\\n)",
		EnvVars: []string{"SUBSTREAM_KEYS"},
	},
	&cli.BoolFlag{
		Name:  "json",
		Usage: "print results as JSON instead of tables",
	},
	&cli.BoolFlag{
		Name:  "dev",
		Usage: "sets log-level to debug and allows placeholder dev server keys. insecure for production",
	},
	&cli.BoolFlag{
		Name:   "disable-strict-config",
		Usage:  "disables strict config parsing",
		Hidden: true,
	},
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	generatedFlags, err := config.GenerateCLIFlags(baseFlags, true)
	if err != nil {
		fmt.Println(err)
	}

	return &cli.App{
		Name:    "substream",
		Usage:   "provision ingress and inspect rooms on a LiveKit compatible project",
		Flags:   append(baseFlags, generatedFlags...),
		Version: version.Version,
		Commands: []*cli.Command{
			{
				Name:   "generate-keys",
				Usage:  "generates an API key and secret pair",
				Action: generateKeys,
			},
			{
				Name:   "create-token",
				Usage:  "creates a room join token",
				Action: createToken,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "room",
						Aliases:  []string{"r"},
						Usage:    "name of room to join",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "identity",
						Aliases:  []string{"i"},
						Usage:    "identity of participant that holds the token",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "name",
						Usage: "display name of the participant",
					},
					&cli.StringFlag{
						Name:  "metadata",
						Usage: "participant metadata",
					},
					&cli.DurationFlag{
						Name:  "valid-for",
						Usage: "token validity, whole seconds",
						Value: config.DefaultParticipantTokenTTL,
					},
					&cli.BoolFlag{
						Name:  "viewer",
						Usage: "subscribe only, cannot publish",
					},
				},
			},
			{
				Name:   "create-ingress",
				Usage:  "creates an ingress endpoint",
				Action: createIngress,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "input-type",
						Usage: "URL_INPUT, WHIP_INPUT, SIP_INPUT or the platform integer",
						Value: "WHIP_INPUT",
					},
					&cli.StringFlag{
						Name:  "name",
						Usage: "ingress name",
					},
					&cli.StringFlag{
						Name:  "room",
						Usage: "room to publish into, empty to assign when media connects",
					},
					&cli.StringFlag{
						Name:  "identity",
						Usage: "identity of the publishing participant",
					},
					&cli.StringFlag{
						Name:  "participant-name",
						Usage: "display name of the publishing participant",
					},
					&cli.BoolFlag{
						Name:  "bypass-transcoding",
						Usage: "forward WHIP media as is",
					},
					&cli.BoolFlag{
						Name:  "replace",
						Usage: "delete existing ingress with the same name first",
					},
				},
			},
			{
				Name:   "list-ingress",
				Usage:  "lists ingress endpoints",
				Action: listIngress,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "room",
						Usage: "only ingress publishing into this room",
					},
					&cli.StringFlag{
						Name:  "id",
						Usage: "only this ingress",
					},
				},
			},
			{
				Name:   "delete-ingress",
				Usage:  "deletes an ingress endpoint",
				Action: deleteIngress,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "id",
						Usage:    "ingress id",
						Required: true,
					},
				},
			},
			{
				Name:   "probe-ingress-types",
				Usage:  "discovers which ingress input types the project accepts",
				Action: probeIngressTypes,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "type",
						Usage: "input types to probe, all platform values when omitted",
					},
				},
			},
			{
				Name:   "list-rooms",
				Usage:  "lists active rooms",
				Action: listRooms,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "name",
						Usage: "only rooms with these names",
					},
				},
			},
			{
				Name:   "list-participants",
				Usage:  "lists participants of a room",
				Action: listParticipants,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "room",
						Usage:    "room name",
						Required: true,
					},
				},
			},
			{
				Name:   "dev-server",
				Usage:  "runs an in-memory platform for local development",
				Action: startDevServer,
			},
			{
				Name:   "help-verbose",
				Usage:  "prints app help, including all generated configuration flags",
				Action: helpVerbose,
			},
		},
	}
}

func getConfig(c *cli.Context) (*config.Config, error) {
	confString, err := config.GetConfigString(c.String("config"), c.String("config-body"))
	if err != nil {
		return nil, err
	}

	strictMode := true
	if c.Bool("disable-strict-config") {
		strictMode = false
	}

	conf, err := config.NewConfig(confString, strictMode, c, baseFlags)
	if err != nil {
		return nil, err
	}
	config.InitLoggerFromConfig(&conf.Logging)
	return conf, nil
}

func helpVerbose(c *cli.Context) error {
	generatedFlags, err := config.GenerateCLIFlags(baseFlags, false)
	if err != nil {
		return err
	}

	c.App.Flags = append(baseFlags, generatedFlags...)
	return cli.ShowAppHelp(c)
}
