//go:build wireinject
// +build wireinject

package service

import (
	"github.com/google/wire"
	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/substream/substream-control/pkg/config"
)

func InitializeClient(conf *config.Config, reg prom.Registerer) (*Client, error) {
	wire.Build(
		ClientSet,
	)
	return &Client{}, nil
}
