package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"inferd/internal/acquire"
	"inferd/internal/config"
	"inferd/internal/proc"
)

// acceleratorFailures are output signatures that mark a broken GPU backend
// even when the process exits zero. Matched case-insensitively.
var acceleratorFailures = []string{
	"cuda error",
	"cublas error",
	"rocm error",
	"out of memory",
	"failed to initialize",
	"no usable gpu",
}

func textBinSpec(s config.Server, dataDir, stateDir string, sup *proc.Supervisor) acquire.Spec {
	return acquire.Spec{
		Name:       "llama",
		ExeNames:   exeNames("llama-server", "server"),
		InstallDir: filepath.Join(dataDir, "bin", "llama"),
		WorkDir:    filepath.Join(dataDir, "work"),
		StateDir:   stateDir,
		Variants:   acquireVariants(s.Variants),
		Probe: acquire.ValidationSpec{
			VersionArgs:     []string{"--version"},
			Workload:        serverLoadWorkload(sup),
			WorkloadTimeout: 2 * time.Minute,
			FailurePatterns: acceleratorFailures,
		},
	}
}

func imageBinSpec(s config.Server, dataDir, stateDir string, sup *proc.Supervisor) acquire.Spec {
	return acquire.Spec{
		Name:       "sd",
		ExeNames:   exeNames("sd"),
		InstallDir: filepath.Join(dataDir, "bin", "sd"),
		WorkDir:    filepath.Join(dataDir, "work"),
		StateDir:   stateDir,
		Variants:   acquireVariants(s.Variants),
		Probe: acquire.ValidationSpec{
			VersionArgs:     []string{"--version"},
			Workload:        diffusionWorkload(sup),
			WorkloadTimeout: 5 * time.Minute,
			FailurePatterns: acceleratorFailures,
		},
	}
}

// exeNames appends the platform executable suffix.
func exeNames(names ...string) []string {
	if runtime.GOOS != "windows" {
		return names
	}
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = n + ".exe"
	}
	return out
}

func acquireVariants(vs []config.Variant) []acquire.Variant {
	out := make([]acquire.Variant, 0, len(vs))
	for _, v := range vs {
		av := acquire.Variant{Tag: v.Tag, URL: v.URL, SHA256: v.SHA256}
		for _, d := range v.Deps {
			av.Deps = append(av.Deps, acquire.Dependency{URL: d.URL, SHA256: d.SHA256})
		}
		out = append(out, av)
	}
	return out
}

// serverLoadWorkload proves a llama.cpp server build can actually load a
// model: it brings the candidate up on a loopback port with the test
// artifact and waits for its health endpoint to turn ready.
func serverLoadWorkload(sup *proc.Supervisor) acquire.Workload {
	return func(ctx context.Context, exe, artifact string) (string, error) {
		port, err := freePort()
		if err != nil {
			return "", err
		}

		var mu sync.Mutex
		var out strings.Builder
		exited := make(chan struct{})
		p, err := sup.Start(exe, []string{
			"--model", artifact,
			"--host", "127.0.0.1",
			"--port", strconv.Itoa(port),
		}, proc.Options{
			OnLine: func(_, line string) {
				mu.Lock()
				out.WriteString(line)
				out.WriteByte('\n')
				mu.Unlock()
			},
			OnExit: func(proc.ExitInfo) { close(exited) },
		})
		if err != nil {
			return "", err
		}
		defer func() { _ = p.Stop(5 * time.Second) }()
		collected := func() string {
			mu.Lock()
			defer mu.Unlock()
			return out.String()
		}

		url := fmt.Sprintf("http://127.0.0.1:%d/health", port)
		tick := time.NewTicker(500 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return collected(), ctx.Err()
			case <-exited:
				return collected(), fmt.Errorf("server exited during load check")
			case <-tick.C:
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
				if err != nil {
					return collected(), err
				}
				resp, err := http.DefaultClient.Do(req)
				if err != nil {
					continue
				}
				code := resp.StatusCode
				resp.Body.Close()
				if code >= 200 && code < 300 {
					return collected(), nil
				}
			}
		}
	}
}

// diffusionWorkload proves a stable-diffusion build works end to end by
// rendering one tiny image from the test artifact.
func diffusionWorkload(sup *proc.Supervisor) acquire.Workload {
	return func(ctx context.Context, exe, artifact string) (string, error) {
		dir, err := os.MkdirTemp("", "sd-check-*")
		if err != nil {
			return "", err
		}
		defer os.RemoveAll(dir)

		outFile := filepath.Join(dir, "out.png")
		timeout := 10 * time.Minute
		if d, ok := ctx.Deadline(); ok {
			timeout = time.Until(d)
		}
		res, err := sup.Run(ctx, exe, []string{
			"-M", "txt2img",
			"-m", artifact,
			"-p", "a lighthouse at dusk",
			"-o", outFile,
			"-W", "64",
			"-H", "64",
			"--steps", "1",
		}, timeout, proc.Options{Dir: dir})
		if err != nil {
			return "", err
		}
		if res.TimedOut {
			return res.Output, context.DeadlineExceeded
		}
		if res.ExitCode != 0 {
			return res.Output, fmt.Errorf("render exited %d", res.ExitCode)
		}
		if _, err := os.Stat(outFile); err != nil {
			return res.Output, fmt.Errorf("render produced no output file")
		}
		return res.Output, nil
	}
}

// freePort asks the kernel for an unused loopback port.
func freePort() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port, nil
}
