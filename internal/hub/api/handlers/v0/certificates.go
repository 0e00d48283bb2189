package v0

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/contracthub-dev/contracthub/internal/hub/service"
	"github.com/contracthub-dev/contracthub/pkg/certificate"
)

// CertificateResponse carries a signed deployment certificate
type CertificateResponse struct {
	Body certificate.Signed
}

// ValidateCertificateRequest names the instance to validate by its public URL
type ValidateCertificateRequest struct {
	InstanceURL string `json:"instance_url" doc:"Public URL of the running instance" example:"https://abc123.instances.example.com/api"`
}

// ValidatedCertificateResponse returns the certificate an instance presented
// after it passed verification
type ValidatedCertificateResponse struct {
	Body certificate.Certificate
}

// RegisterCertificatesEndpoints registers certificate lifecycle endpoints
func RegisterCertificatesEndpoints(api huma.API, basePath string, hub service.HubService) {
	// Obtain the hub-signed certificate for external counter-signing
	huma.Register(api, huma.Operation{
		OperationID: "obtain-certificate",
		Method:      http.MethodGet,
		Path:        basePath + "/deployments/{id}/certificate",
		Summary:     "Obtain the deployment certificate",
		Description: "Retrieve the hub-signed certificate for a deployment waiting to receive one. Owner only.",
		Tags:        []string{"certificates"},
	}, func(ctx context.Context, input *DeploymentIDInput) (*CertificateResponse, error) {
		signed, err := hub.ObtainCertificate(ctx, input.ID)
		if err != nil {
			return nil, mapServiceError(err, "Failed to obtain certificate")
		}
		return &CertificateResponse{Body: signed}, nil
	})

	// Hand a signed certificate back to resume the workflow
	huma.Register(api, huma.Operation{
		OperationID: "initialize-certificate",
		Method:      http.MethodPost,
		Path:        basePath + "/deployments/{id}/certificate",
		Summary:     "Initialize the deployment certificate",
		Description: "Return the signed certificate to the hub. The certificate must verify and match the deployment exactly; processing resumes on success.",
		Tags:        []string{"certificates"},
	}, func(ctx context.Context, input *struct {
		DeploymentIDInput
		Body certificate.Signed
	}) (*DeploymentResponse, error) {
		info, err := hub.InitializeCertificate(ctx, input.ID, input.Body)
		if err != nil {
			return nil, mapServiceError(err, "Failed to initialize certificate")
		}
		return &DeploymentResponse{Body: *info}, nil
	})

	// Regenerate after a lost or mangled certificate
	huma.Register(api, huma.Operation{
		OperationID: "retry-generate-certificate",
		Method:      http.MethodPost,
		Path:        basePath + "/deployments/{id}/certificate/retry",
		Summary:     "Retry certificate generation",
		Description: "Discard the pending certificate and generate a fresh one. Owner only; valid while the deployment waits for its certificate.",
		Tags:        []string{"certificates"},
	}, func(ctx context.Context, input *DeploymentIDInput) (*DeploymentResponse, error) {
		info, err := hub.RetryGenerateCertificate(ctx, input.ID)
		if err != nil {
			return nil, mapServiceError(err, "Failed to retry certificate generation")
		}
		return &DeploymentResponse{Body: *info}, nil
	})

	// Validate a running instance
	huma.Register(api, huma.Operation{
		OperationID: "validate-certificate",
		Method:      http.MethodPost,
		Path:        basePath + "/certificates/validate",
		Summary:     "Validate an instance certificate",
		Description: "Fetch the certificate a running instance presents at its public URL and verify it against the hub's records.",
		Tags:        []string{"certificates"},
	}, func(ctx context.Context, input *struct {
		Body ValidateCertificateRequest
	}) (*ValidatedCertificateResponse, error) {
		cert, err := hub.ValidateCertificate(ctx, input.Body.InstanceURL)
		if err != nil {
			return nil, mapServiceError(err, "Failed to validate certificate")
		}
		return &ValidatedCertificateResponse{Body: cert}, nil
	})
}
