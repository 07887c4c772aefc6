package cmd

import (
	"GeoCMS/backend/go/pkg/circuitbreaker"
	"GeoCMS/backend/go/pkg/discovery/etcd"
	pkgHttp "GeoCMS/backend/go/pkg/http"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const serviceName = "conversation_service"

var (
	serverURL     string
	etcdEndpoints []string
	token         string
	timeout       time.Duration
)

var rootCmd = &cobra.Command{
	Use:          "geocms-cli",
	Short:        "A CLI client to drive GeoCMS conversations",
	Long:         `A command-line interface for starting conversations, answering slot questions and generating site content.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:8080", "conversation service base URL")
	rootCmd.PersistentFlags().StringSliceVar(&etcdEndpoints, "etcd", nil, "etcd endpoints used to discover the service (overrides --server)")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("GEOCMS_TOKEN"), "JWT bearer token")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 90*time.Second, "request timeout")
}

// newAPIClient resolves the service address and builds a client with a circuit breaker.
func newAPIClient(ctx context.Context) (*apiClient, error) {
	base := serverURL
	if len(etcdEndpoints) > 0 {
		addr, err := discover(ctx, etcdEndpoints)
		if err != nil {
			return nil, err
		}
		base = addr
	}
	breaker := circuitbreaker.New(3, 1, 10*time.Second)
	return &apiClient{
		baseURL: strings.TrimRight(base, "/"),
		token:   token,
		http:    pkgHttp.NewClient(timeout, breaker),
	}, nil
}

func discover(ctx context.Context, endpoints []string) (string, error) {
	sd, err := etcd.NewServiceDiscovery(endpoints)
	if err != nil {
		return "", err
	}
	defer sd.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	addrs, err := sd.Discover(ctx, serviceName)
	if err != nil {
		return "", err
	}
	if len(addrs) == 0 {
		return "", errors.New("no conversation_service instance registered in etcd")
	}
	addr := addrs[0]
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}
	return addr, nil
}

func printJSON(w io.Writer, raw []byte) {
	fmt.Fprintln(w, string(indentJSON(raw)))
}
