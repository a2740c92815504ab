package probes

import (
	"context"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/intar-dev/intar-cli/internal/probespec"
)

// evalK8sEndpointsNonEmpty fetches an Endpoints object and passes iff at
// least one address is present across its subsets.
func evalK8sEndpointsNonEmpty(ctx context.Context, spec *probespec.K8sEndpointsNonEmptySpec) (bool, string, error) {
	clientset, err := k8sClientset(spec.Kubeconfig, spec.Context)
	if err != nil {
		return false, fmt.Sprintf("building kube client: %v", err), nil
	}

	ep, err := clientset.CoreV1().Endpoints(spec.Namespace).Get(ctx, spec.Name, metav1.GetOptions{})
	if err != nil {
		return false, fmt.Sprintf("fetching endpoints %s/%s: %v", spec.Namespace, spec.Name, err), nil
	}

	addrs := 0
	for _, subset := range ep.Subsets {
		addrs += len(subset.Addresses)
	}

	if addrs > 0 {
		return true, fmt.Sprintf("%d addresses", addrs), nil
	}
	return false, fmt.Sprintf("endpoints %s/%s has no addresses", spec.Namespace, spec.Name), nil
}
