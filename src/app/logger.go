package app

import (
	"go.uber.org/zap"

	"github.com/Blackdeer1524/HeapDB/src"
	"github.com/Blackdeer1524/HeapDB/src/cfg"
)

func NewLogger(env cfg.Environment) (src.Logger, error) {
	var (
		log *zap.Logger
		err error
	)
	if env == cfg.EnvDev {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}

	return log.Sugar(), nil
}
