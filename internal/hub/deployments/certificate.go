package deployments

import (
	"context"

	"github.com/contracthub-dev/contracthub/internal/hub/types"
	"github.com/contracthub-dev/contracthub/pkg/certificate"
)

// processGenerateCertificate builds the canonical certificate and publishes
// its commitment with the certifier. The signed form is fetched out-of-band
// by the instance itself, so this handler stops the loop: the saga resumes
// when the certificate is handed back.
func processGenerateCertificate(ctx context.Context, d *Driver, id types.DeploymentID, lock types.Lock) (taskResult, error) {
	record, err := d.store.Deployment(id)
	if err != nil {
		return taskResult{}, err
	}
	template, err := d.store.Template(record.TemplateID)
	if err != nil {
		return taskResult{}, err
	}

	cert := BuildCertificate(d.env.HubID, record, template)
	if err := d.env.Certifier.Publish(cert); err != nil {
		return taskResult{}, err
	}

	d.env.Logger.Info("certificate commitment published",
		"deployment_id", id, "fingerprint", cert.Fingerprint())

	if err := d.applyEvent(ctx, id, lock, types.ProcessingEvent{
		Kind: types.EventCertificateGenerated,
	}); err != nil {
		return taskResult{}, err
	}
	return stopTask(), nil
}

// BuildCertificate assembles the canonical certificate for a deployment.
// The expiration is anchored to the record's creation time, so regenerating
// the certificate never extends it.
func BuildCertificate(hub types.Principal, record *types.DeploymentRecord, template *types.ContractTemplate) certificate.Certificate {
	return certificate.Certificate{
		Hub:        string(hub),
		Owner:      string(record.Owner),
		Instance:   string(record.Instance),
		BinaryHash: template.Definition.BinaryHash,
		TemplateID: record.TemplateID,
		Expiration: record.Created + template.Definition.CertificateDuration,
	}
}
