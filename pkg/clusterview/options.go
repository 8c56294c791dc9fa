package clusterview

import metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

func metaGetOptions() metav1.GetOptions   { return metav1.GetOptions{} }
func metaListOptions() metav1.ListOptions { return metav1.ListOptions{} }
