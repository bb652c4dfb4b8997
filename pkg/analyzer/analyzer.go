package analyzer

import (
	"context"
	"strings"

	"github.com/crossplane/function-sdk-go/logging"
	"golang.org/x/sync/errgroup"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"

	"github.com/novelcore/kubeclient/pkg/errors"
	"github.com/novelcore/kubeclient/pkg/executor"
	"github.com/novelcore/kubeclient/pkg/registry"
)

// defaultMaxConcurrency bounds the per-group discovery fan-out
const defaultMaxConcurrency = 8

// Analyzer crawls the API server's discovery tree and fills the rule base.
// It runs once at client construction and again, targeted at a single
// group/version, whenever the CRD watcher sees a new CustomResourceDefinition.
type Analyzer struct {
	exec  executor.Executor
	rules *registry.RuleBase
	log   logging.Logger
}

// NewAnalyzer creates an analyzer writing into the given rule base
func NewAnalyzer(exec executor.Executor, rules *registry.RuleBase, log logging.Logger) *Analyzer {
	return &Analyzer{
		exec:  exec,
		rules: rules,
		log:   log,
	}
}

// RuleBase exposes the rule base the analyzer writes into
func (a *Analyzer) RuleBase() *registry.RuleBase {
	return a.rules
}

// Discover walks the discovery endpoints and registers every served
// resource: first the core group at /api/v1, then each group's preferred
// version under /apis. Groups are crawled concurrently; a group that fails
// discovery is logged and skipped rather than failing the whole walk.
func (a *Analyzer) Discover(ctx context.Context) error {
	master := a.exec.MasterURL()

	if err := a.RegisterKinds(ctx, master+"/api/v1"); err != nil {
		return errors.Wrap(err, "failed to discover the core group")
	}

	obj, err := a.exec.Get(ctx, master+"/apis")
	if err != nil {
		return errors.Wrap(err, "failed to list API groups")
	}

	groupList := metav1.APIGroupList{}
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(obj.Object, &groupList); err != nil {
		return errors.ParseError(err, "unexpected API group list document")
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(defaultMaxConcurrency)

	for _, group := range groupList.Groups {
		groupVersion := group.PreferredVersion.GroupVersion
		if groupVersion == "" && len(group.Versions) > 0 {
			groupVersion = group.Versions[0].GroupVersion
		}
		if groupVersion == "" {
			continue
		}

		url := master + "/apis/" + groupVersion
		g.Go(func() error {
			if err := a.RegisterKinds(gCtx, url); err != nil {
				a.log.Info("Skipping undiscoverable group", "url", url, "error", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	a.log.Debug("Discovery completed",
		"kinds", len(a.rules.FullKinds()), "master", master)

	return nil
}

// RegisterKinds fetches the resource list served at an absolute
// group/version URL and registers every top-level resource. Sub-resources
// such as pods/status carry a slash in their name and are skipped. The URL
// itself becomes the registered apiPrefix.
func (a *Analyzer) RegisterKinds(ctx context.Context, url string) error {
	obj, err := a.exec.Get(ctx, url)
	if err != nil {
		return err
	}

	resourceList := metav1.APIResourceList{}
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(obj.Object, &resourceList); err != nil {
		return errors.ParseError(err, "unexpected API resource list document")
	}

	group, version := splitGroupVersion(resourceList.GroupVersion)

	for _, resource := range resourceList.APIResources {
		if strings.Contains(resource.Name, "/") {
			continue
		}

		fullKind := registry.FullKind(group, resource.Kind)
		a.rules.PutKind(fullKind, registry.KindDescriptor{
			Kind:       resource.Kind,
			Plural:     resource.Name,
			Group:      group,
			Version:    version,
			Namespaced: resource.Namespaced,
			APIPrefix:  strings.TrimSuffix(url, "/"),
			Verbs:      resource.Verbs,
		})
	}

	return nil
}

func splitGroupVersion(groupVersion string) (group, version string) {
	if idx := strings.Index(groupVersion, "/"); idx >= 0 {
		return groupVersion[:idx], groupVersion[idx+1:]
	}
	return "", groupVersion
}
