/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/valpere/captran/internal/catalog"
	"github.com/valpere/captran/internal/config"
	"github.com/valpere/captran/internal/orchestrator"
	"github.com/valpere/captran/internal/service"
	"github.com/valpere/captran/internal/store"
	"github.com/valpere/captran/internal/translator"
	"github.com/valpere/captran/internal/validator"
	"github.com/valpere/captran/internal/worker"
)

func buildCatalog() (*catalog.Catalog, error) {
	if cfg.Catalog == "" {
		return catalog.Default(), nil
	}
	return catalog.LoadFile(cfg.Catalog)
}

// buildSpawner returns the worker spawner for the configured worker mode.
func buildSpawner() (worker.Spawner, error) {
	switch cfg.Worker {
	case config.WorkerProcess:
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to locate executable: %w", err)
		}
		return &worker.Process{
			Path:   exe,
			Args:   []string{"worker"},
			Env:    cfg.WorkerEnv(),
			Stderr: os.Stderr,
			Log:    logger,
		}, nil
	default:
		backend, err := translator.New(cfg.Backend, cfg.Translator)
		if err != nil {
			return nil, err
		}
		return worker.NewLocal(backend, logger), nil
	}
}

// buildMemory opens the configured translation memories. It returns nil
// when none is configured.
func buildMemory(ctx context.Context) (store.Memory, []io.Closer, error) {
	var (
		chain   store.Chain
		closers []io.Closer
	)
	if cfg.Redis.URL != "" {
		rm, err := store.NewRedisMemory(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		chain = append(chain, rm)
		closers = append(closers, rm)
	}
	if cfg.DB != "" {
		db, err := store.New(cfg.DB)
		if err != nil {
			closeAll(closers)
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		chain = append(chain, db)
		closers = append(closers, db)
	}

	switch len(chain) {
	case 0:
		return nil, nil, nil
	case 1:
		return chain[0], closers, nil
	default:
		return chain, closers, nil
	}
}

// buildService wires catalog, orchestrator, memory and validator together.
// The returned close func releases all of them.
func buildService(ctx context.Context) (*service.Service, func() error, error) {
	cat, err := buildCatalog()
	if err != nil {
		return nil, nil, err
	}
	spawner, err := buildSpawner()
	if err != nil {
		return nil, nil, err
	}
	mem, closers, err := buildMemory(ctx)
	if err != nil {
		return nil, nil, err
	}

	orch := orchestrator.New(cat, spawner, logger, orchestrator.Config{
		TranslateTimeout: cfg.TranslateTimeout,
		LoadTimeout:      cfg.LoadTimeout,
	})

	opts := service.Options{Memory: mem, Log: logger}
	if cfg.ValidateOutput {
		opts.Validator = validator.New(cat.Codes()...)
	}
	svc := service.New(orch, cat, opts)

	closeFn := func() error {
		return errors.Join(svc.Close(), closeAll(closers))
	}
	return svc, closeFn, nil
}

func closeAll(closers []io.Closer) error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		errs = append(errs, closers[i].Close())
	}
	return errors.Join(errs...)
}
