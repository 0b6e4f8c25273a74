package client

import (
	"context"
	"fmt"

	authorizationv1 "k8s.io/api/authorization/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
)

// CanWatchResource asks the cluster whether the identity behind token may
// watch the given resource, via a SelfSubjectAccessReview issued with that
// token as the credential. The resource argument is the plural name.
//
// Returns (false, nil) for an explicit denial and a non-nil error only
// for transport failures, so callers can tell "not allowed" apart from
// "could not ask".
func (c *Client) CanWatchResource(ctx context.Context, token, group, resource, namespace, name string) (bool, error) {
	if token == "" {
		return false, fmt.Errorf("token cannot be empty")
	}
	if resource == "" {
		return false, fmt.Errorf("resource cannot be empty")
	}

	// Reviews run as the subscriber, not as the gateway's service
	// account: strip our credentials and attach the subscriber's token.
	reviewConfig := rest.AnonymousClientConfig(c.restConfig)
	reviewConfig.BearerToken = token

	reviewClient, err := kubernetes.NewForConfig(reviewConfig)
	if err != nil {
		return false, &ClientError{
			Operation: "create access review client",
			Err:       err,
		}
	}

	review := &authorizationv1.SelfSubjectAccessReview{
		Spec: authorizationv1.SelfSubjectAccessReviewSpec{
			ResourceAttributes: &authorizationv1.ResourceAttributes{
				Namespace: namespace,
				Verb:      "watch",
				Group:     group,
				Resource:  resource,
				Name:      name,
			},
		},
	}

	result, err := reviewClient.AuthorizationV1().SelfSubjectAccessReviews().Create(ctx, review, metav1.CreateOptions{})
	if err != nil {
		// An invalid or expired token surfaces as a 401/403 on the
		// review call itself; that is a denial, not a transport failure.
		if apierrors.IsUnauthorized(err) || apierrors.IsForbidden(err) {
			return false, nil
		}
		return false, &ClientError{
			Operation: "create self subject access review",
			Err:       err,
		}
	}

	return result.Status.Allowed, nil
}
