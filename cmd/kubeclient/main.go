// kubeclient is a small command line front end for the dynamic client:
// it discovers the cluster's kinds at startup and can read, list, apply,
// delete, and watch any of them, including custom resources.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	function "github.com/crossplane/function-sdk-go"
	"github.com/crossplane/function-sdk-go/logging"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/yaml"

	"github.com/novelcore/kubeclient/internal/config"
	"github.com/novelcore/kubeclient/pkg/client"
	"github.com/novelcore/kubeclient/pkg/convertor"
	"github.com/novelcore/kubeclient/pkg/watch"
)

// CLI declares the command line surface
type CLI struct {
	Debug bool `short:"d" help:"Emit debug logs in addition to info logs."`

	Master     string `help:"API server URL, e.g. https://host:6443." env:"KUBE_MASTER_URL"`
	Token      string `help:"Bearer token credential." env:"KUBE_TOKEN"`
	Username   string `help:"Basic auth username." env:"KUBE_USERNAME"`
	Password   string `help:"Basic auth password." env:"KUBE_PASSWORD"`
	Kubeconfig string `help:"Path to a kubeconfig file, used when no token or basic auth is given." env:"KUBECONFIG"`

	Kinds  KindsCmd  `cmd:"" help:"Print the kinds the cluster serves."`
	Get    GetCmd    `cmd:"" help:"Fetch one resource."`
	List   ListCmd   `cmd:"" help:"List resources of a kind."`
	Apply  ApplyCmd  `cmd:"" help:"Create or update a resource from a YAML or JSON file."`
	Delete DeleteCmd `cmd:"" help:"Delete one resource."`
	Watch  WatchCmd  `cmd:"" help:"Stream change events of a kind until interrupted."`
}

type runContext struct {
	ctx    context.Context
	client *client.Client
	log    logging.Logger
}

func main() {
	cfg := config.New()
	cli := CLI{
		Master:     cfg.MasterURL,
		Token:      cfg.Token,
		Username:   cfg.Username,
		Password:   cfg.Password,
		Kubeconfig: cfg.Kubeconfig,
		Debug:      cfg.Debug,
	}

	kctx := kong.Parse(&cli,
		kong.Name("kubeclient"),
		kong.Description("Schema-discovering Kubernetes client."),
		kong.UsageOnError())

	log, err := function.NewLogger(cli.Debug)
	kctx.FatalIfErrorf(err, "cannot create logger")

	ctx := context.Background()
	c, err := newClient(ctx, &cli, cfg, log)
	kctx.FatalIfErrorf(err, "cannot connect to cluster")

	kctx.FatalIfErrorf(kctx.Run(&runContext{ctx: ctx, client: c, log: log}))
}

func newClient(ctx context.Context, cli *CLI, cfg *config.Config, log logging.Logger) (*client.Client, error) {
	opts := []client.Option{client.WithLogger(log)}
	if cfg.IncludeKindParam {
		opts = append(opts, client.WithKindListParameter())
	}

	switch {
	case cli.Master != "" && cli.Token != "":
		return client.NewForToken(ctx, cli.Master, cli.Token, opts...)
	case cli.Master != "" && cli.Username != "":
		return client.NewForBasicAuth(ctx, cli.Master, cli.Username, cli.Password, opts...)
	default:
		return client.NewFromKubeconfig(ctx, cli.Kubeconfig, opts...)
	}
}

// KindsCmd prints every kind the cluster serves with its descriptor
type KindsCmd struct {
	Full bool `help:"Print fullKinds with their descriptors instead of short kinds."`
}

func (k *KindsCmd) Run(rc *runContext) error {
	if !k.Full {
		for _, kind := range rc.client.Kinds() {
			fmt.Println(kind)
		}
		return nil
	}
	return printJSON(rc.client.KindDescriptors())
}

// GetCmd fetches one resource
type GetCmd struct {
	Kind      string `arg:"" help:"Short kind or fullKind, e.g. Pod or apps.Deployment."`
	Name      string `arg:"" help:"Resource name."`
	Namespace string `short:"n" help:"Namespace, empty for cluster-scoped kinds."`
}

func (g *GetCmd) Run(rc *runContext) error {
	obj, err := rc.client.GetResource(rc.ctx, g.Kind, g.Namespace, g.Name)
	if err != nil {
		return err
	}
	return printJSON(obj.Object)
}

// ListCmd lists resources of a kind
type ListCmd struct {
	Kind          string `arg:"" help:"Short kind or fullKind."`
	Namespace     string `short:"n" help:"Namespace, empty for all namespaces."`
	FieldSelector string `help:"Field selector expression."`
	LabelSelector string `short:"l" help:"Label selector expression."`
	Limit         int64  `help:"Page size, 0 for unpaged."`
	Continue      string `help:"Continue token from a previous page."`
}

func (l *ListCmd) Run(rc *runContext) error {
	obj, err := rc.client.ListResources(rc.ctx, l.Kind, l.Namespace, convertor.ListOptions{
		FieldSelector: l.FieldSelector,
		LabelSelector: l.LabelSelector,
		Limit:         l.Limit,
		Continue:      l.Continue,
	})
	if err != nil {
		return err
	}
	return printJSON(obj.Object)
}

// ApplyCmd creates or updates a resource from a file
type ApplyCmd struct {
	File string `arg:"" type:"existingfile" help:"YAML or JSON resource document."`
}

func (a *ApplyCmd) Run(rc *runContext) error {
	data, err := os.ReadFile(a.File)
	if err != nil {
		return err
	}

	doc := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return err
	}
	obj := &unstructured.Unstructured{Object: doc}

	fullKind, err := convertor.DocumentFullKind(obj)
	if err != nil {
		return err
	}

	var result *unstructured.Unstructured
	if rc.client.HasResource(rc.ctx, fullKind, convertor.DocumentNamespace(obj), convertor.DocumentName(obj)) {
		result, err = rc.client.UpdateResource(rc.ctx, obj)
	} else {
		result, err = rc.client.CreateResource(rc.ctx, obj)
	}
	if err != nil {
		return err
	}
	return printJSON(result.Object)
}

// DeleteCmd deletes one resource
type DeleteCmd struct {
	Kind      string `arg:"" help:"Short kind or fullKind."`
	Name      string `arg:"" help:"Resource name."`
	Namespace string `short:"n" help:"Namespace, empty for cluster-scoped kinds."`
}

func (d *DeleteCmd) Run(rc *runContext) error {
	obj, err := rc.client.DeleteResource(rc.ctx, d.Kind, d.Namespace, d.Name)
	if err != nil {
		return err
	}
	return printJSON(obj.Object)
}

// WatchCmd streams change events to stdout until interrupted
type WatchCmd struct {
	Kind      string `arg:"" help:"Short kind or fullKind."`
	Name      string `arg:"" optional:"" help:"Watch a single resource instead of the collection."`
	Namespace string `short:"n" help:"Namespace, empty for all namespaces."`
}

func (w *WatchCmd) Run(rc *runContext) error {
	handler := &printingHandler{}

	var session *watch.Session
	var err error
	if w.Name != "" {
		session, err = rc.client.WatchResource(rc.ctx, w.Kind, w.Namespace, w.Name, handler)
	} else {
		session, err = rc.client.WatchResources(rc.ctx, w.Kind, w.Namespace, handler)
	}
	if err != nil {
		return err
	}

	rc.log.Info("Watching", "session", session.Name())

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	select {
	case <-interrupt:
		session.Stop()
		<-session.Done()
	case <-session.Done():
	}
	return nil
}

// printingHandler writes one line of JSON per event
type printingHandler struct{}

func (h *printingHandler) OnAdded(obj *unstructured.Unstructured)    { h.print(watch.EventAdded, obj) }
func (h *printingHandler) OnModified(obj *unstructured.Unstructured) { h.print(watch.EventModified, obj) }
func (h *printingHandler) OnDeleted(obj *unstructured.Unstructured)  { h.print(watch.EventDeleted, obj) }

func (h *printingHandler) OnClose(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
}

func (h *printingHandler) print(verb string, obj *unstructured.Unstructured) {
	line, err := json.Marshal(map[string]interface{}{"type": verb, "object": obj.Object})
	if err != nil {
		return
	}
	fmt.Println(string(line))
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
