package executor

import (
	"crypto/tls"
	"encoding/base64"
	"os"

	"k8s.io/client-go/tools/clientcmd"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"

	"github.com/novelcore/kubeclient/pkg/errors"
)

// NewFromKubeconfig creates an executor from a kubeconfig file, using the
// current context's cluster URL, certificate authority, and credential
// (client certificate/key, bearer token, or basic auth).
func NewFromKubeconfig(path string) (*HTTPExecutor, error) {
	cfg, err := clientcmd.LoadFromFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load kubeconfig %q", path)
	}

	kubeCtx, ok := cfg.Contexts[cfg.CurrentContext]
	if !ok {
		return nil, errors.InvalidInputError("kubeconfig has no current context")
	}

	cluster, ok := cfg.Clusters[kubeCtx.Cluster]
	if !ok {
		return nil, errors.InvalidInputError("kubeconfig context references an unknown cluster")
	}

	auth, ok := cfg.AuthInfos[kubeCtx.AuthInfo]
	if !ok {
		return nil, errors.InvalidInputError("kubeconfig context references unknown auth info")
	}

	tlsConfig, err := tlsConfigFor(cluster, auth)
	if err != nil {
		return nil, err
	}

	return newHTTPExecutor(cluster.Server, authHeaderFor(auth), tlsConfig), nil
}

func tlsConfigFor(cluster *clientcmdapi.Cluster, auth *clientcmdapi.AuthInfo) (*tls.Config, error) {
	tlsConfig := &tls.Config{} //nolint:gosec // MinVersion left to the runtime default

	if cluster.InsecureSkipTLSVerify {
		tlsConfig.InsecureSkipVerify = true
	}

	caData := cluster.CertificateAuthorityData
	if len(caData) == 0 && cluster.CertificateAuthority != "" {
		data, err := os.ReadFile(cluster.CertificateAuthority)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read certificate authority file")
		}
		caData = data
	}
	if len(caData) > 0 {
		pool, err := CertPoolFromPEM(caData)
		if err != nil {
			return nil, err
		}
		tlsConfig.RootCAs = pool
	}

	certData := auth.ClientCertificateData
	if len(certData) == 0 && auth.ClientCertificate != "" {
		data, err := os.ReadFile(auth.ClientCertificate)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read client certificate file")
		}
		certData = data
	}

	keyData := auth.ClientKeyData
	if len(keyData) == 0 && auth.ClientKey != "" {
		data, err := os.ReadFile(auth.ClientKey)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read client key file")
		}
		keyData = data
	}

	if len(certData) > 0 && len(keyData) > 0 {
		cert, err := tls.X509KeyPair(certData, keyData)
		if err != nil {
			return nil, errors.Wrap(err, "invalid client certificate/key pair")
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

func authHeaderFor(auth *clientcmdapi.AuthInfo) string {
	switch {
	case auth.Token != "":
		return "Bearer " + auth.Token
	case auth.Username != "":
		cred := base64.StdEncoding.EncodeToString([]byte(auth.Username + ":" + auth.Password))
		return "Basic " + cred
	default:
		return ""
	}
}
