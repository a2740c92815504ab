package steps

import (
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"sigs.k8s.io/yaml"

	"github.com/intar-dev/intar-cli/internal/scenario"
)

// renderNamespace renders a bare Namespace manifest.
func renderNamespace(name string) ([]byte, error) {
	ns := corev1.Namespace{
		TypeMeta:   metav1.TypeMeta{APIVersion: "v1", Kind: "Namespace"},
		ObjectMeta: metav1.ObjectMeta{Name: name},
	}
	return yaml.Marshal(ns)
}

// renderDeployment renders a single-container Deployment from a scenario
// K8sManifest.
func renderDeployment(m scenario.K8sManifest) ([]byte, error) {
	replicas := m.Replicas
	if replicas == 0 {
		replicas = 1
	}

	dep := appsv1.Deployment{
		TypeMeta: metav1.TypeMeta{APIVersion: "apps/v1", Kind: "Deployment"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      m.Name,
			Namespace: m.Namespace,
			Labels:    m.Labels,
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: m.Selector},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: m.Selector},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{
						{
							Name:  m.Name,
							Image: m.Image,
							Ports: containerPorts(m.Ports),
						},
					},
				},
			},
		},
	}
	return yaml.Marshal(dep)
}

// renderService renders a ClusterIP Service from a scenario K8sManifest.
func renderService(m scenario.K8sManifest) ([]byte, error) {
	svc := corev1.Service{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "Service"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      m.Name,
			Namespace: m.Namespace,
			Labels:    m.Labels,
		},
		Spec: corev1.ServiceSpec{
			Selector: m.Selector,
			Ports:    servicePorts(m.Ports),
		},
	}
	return yaml.Marshal(svc)
}

func containerPorts(ports []scenario.K8sPort) []corev1.ContainerPort {
	out := make([]corev1.ContainerPort, 0, len(ports))
	for _, p := range ports {
		out = append(out, corev1.ContainerPort{
			Name:          p.Name,
			ContainerPort: p.TargetPort,
		})
	}
	return out
}

func servicePorts(ports []scenario.K8sPort) []corev1.ServicePort {
	out := make([]corev1.ServicePort, 0, len(ports))
	for _, p := range ports {
		out = append(out, corev1.ServicePort{
			Name:       p.Name,
			Port:       p.Port,
			TargetPort: intstr.FromInt32(p.TargetPort),
		})
	}
	return out
}
