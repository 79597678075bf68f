//go:build mage

// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Package main provides build targets for the civicstore project using Mage.
//
// Usage:
//
//	mage build      Compile civicstore binary to bin/
//	mage test       Run all tests
//	mage testRace   Run all tests with the race detector
//	mage cover      Write a coverage profile to bin/cover.out
//	mage lint       Run golangci-lint
//	mage vet        Run go vet
//	mage clean      Remove build artifacts
//	mage install    Install civicstore to GOPATH/bin
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binGo      = "go"
	binaryName = "civicstore"
	binaryDir  = "bin"
	cmdDir     = "./cmd/civicstore"
	versionVar = "github.com/mesh-intelligence/civicstore/internal/cli.Version"
)

// ldflags stamps the version from CIVICSTORE_VERSION when it is set.
func ldflags() string {
	v := os.Getenv("CIVICSTORE_VERSION")
	if v == "" {
		return ""
	}
	return fmt.Sprintf("-X %s=%s", versionVar, v)
}

// Build compiles the civicstore binary to bin/.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	args := []string{"build", "-v", "-o", filepath.Join(binaryDir, binaryName)}
	if f := ldflags(); f != "" {
		args = append(args, "-ldflags", f)
	}
	return sh.RunV(binGo, append(args, cmdDir)...)
}

// Clean removes build artifacts.
func Clean() error {
	if err := os.RemoveAll(binaryDir); err != nil {
		return err
	}
	return sh.RunV(binGo, "clean")
}

// Install builds and copies the binary to GOPATH/bin.
func Install() error {
	mg.Deps(Build)
	gopath, err := sh.Output(binGo, "env", "GOPATH")
	if err != nil {
		return err
	}
	src := filepath.Join(binaryDir, binaryName)
	dst := filepath.Join(gopath, "bin", binaryName)
	return sh.Copy(dst, src)
}
