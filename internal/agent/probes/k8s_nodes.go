package probes

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/intar-dev/intar-cli/internal/probespec"
)

const defaultKubeconfig = "/etc/rancher/k3s/k3s.yaml"

// evalK8sNodesReady lists cluster nodes and passes iff at least
// ExpectedReady of them report a Ready condition of True.
func evalK8sNodesReady(ctx context.Context, spec *probespec.K8sNodesReadySpec) (bool, string, error) {
	clientset, err := k8sClientset(spec.Kubeconfig, spec.Context)
	if err != nil {
		return false, fmt.Sprintf("building kube client: %v", err), nil
	}

	nodes, err := clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return false, fmt.Sprintf("listing nodes: %v", err), nil
	}

	ready := 0
	for _, n := range nodes.Items {
		if nodeIsReady(n) {
			ready++
		}
	}

	if ready >= spec.ExpectedReady {
		return true, fmt.Sprintf("%d/%d nodes ready", ready, len(nodes.Items)), nil
	}
	return false, fmt.Sprintf("only %d nodes ready, want %d", ready, spec.ExpectedReady), nil
}

func nodeIsReady(n corev1.Node) bool {
	for _, cond := range n.Status.Conditions {
		if cond.Type == corev1.NodeReady {
			return cond.Status == corev1.ConditionTrue
		}
	}
	return false
}

func k8sClientset(kubeconfig, kubeContext *string) (*kubernetes.Clientset, error) {
	path := defaultKubeconfig
	if kubeconfig != nil {
		path = *kubeconfig
	}

	loadingRules := &clientcmd.ClientConfigLoadingRules{ExplicitPath: path}
	overrides := &clientcmd.ConfigOverrides{}
	if kubeContext != nil {
		overrides.CurrentContext = *kubeContext
	}

	cfg, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, overrides).ClientConfig()
	if err != nil {
		return nil, err
	}
	return kubernetes.NewForConfig(cfg)
}
