package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Sternrassler/portal-sync/pkg/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// querier is the subset of pgx.Tx the repositories use.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ store.Repos = (*Repos)(nil)

// Repos implements store.Repos on one transaction or savepoint.
type Repos struct {
	q querier
}

// NewRepos binds the repositories to q.
func NewRepos(q querier) *Repos {
	return &Repos{q: q}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (r *Repos) FindBrokerID(ctx context.Context, name string) (int64, bool, error) {
	query := `
		SELECT id FROM brokers
		WHERE UPPER(nome_completo) LIKE UPPER($1) ESCAPE '\'
		ORDER BY id LIMIT 1`
	var id int64
	err := r.q.QueryRow(ctx, query, likeEscaper.Replace(name)+"%").Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("find broker: %w", err)
	}
	return id, true, nil
}

func (r *Repos) FindClientID(ctx context.Context, tenantID int64, document string) (int64, bool, error) {
	var id int64
	err := r.q.QueryRow(ctx,
		`SELECT id FROM clients WHERE documento = $1 AND tenant_id = $2`,
		document, tenantID,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("find client: %w", err)
	}
	return id, true, nil
}

// CreateClient inserts c and returns its id. When a client with the same
// tenant and document already exists, its id is returned instead.
func (r *Repos) CreateClient(ctx context.Context, c store.ClientRow) (int64, error) {
	query := `
		INSERT INTO clients (
			tenant_id, nome, tipo_documento, documento, broker_id, data_nascimento,
			telefone, email, endereco, cidade, cep, titular_cpf, sexo, estado_civil,
			numero_documento, orgao_expedidor, renda_patrimonio, profissao, numero,
			complemento, bairro, uf
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		ON CONFLICT (tenant_id, documento) DO NOTHING
		RETURNING id`
	var id int64
	err := r.q.QueryRow(ctx, query,
		c.TenantID, c.Name, c.DocumentKind, c.Document, c.BrokerID, c.BirthDate,
		c.Phone, c.Email, c.Street, c.City, c.PostalCode, c.HolderCPF, c.Sex, c.MaritalStatus,
		c.IDNumber, c.IDIssuer, c.Income, c.Occupation, c.StreetNumber,
		c.AddressLine2, c.District, c.State,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("insert client: %w", err)
	}

	id, ok, err := r.FindClientID(ctx, c.TenantID, c.Document)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("insert client: conflicting row for document %s not found", c.Document)
	}
	return id, nil
}

func (r *Repos) FindProposal(ctx context.Context, tenantID int64, number string) (*store.ProposalRow, error) {
	query := `
		SELECT id, tenant_id, client_id, broker_id, insurance_company_id, proposta, produto,
		       linha_negocio, criada_em, status_proposta, forma_pagamento, valor, vencimento,
		       competencia, status_pagamento, motivo_pendencia, "data"
		FROM proposals
		WHERE proposta = $1 AND tenant_id = $2`
	var p store.ProposalRow
	var brokerID, companyID *int64
	err := r.q.QueryRow(ctx, query, number, tenantID).Scan(
		&p.ID, &p.TenantID, &p.ClientID, &brokerID, &companyID, &p.Number, &p.Product,
		&p.BusinessLine, &p.CreatedAt, &p.Phase, &p.PaymentMethod, &p.Amount, &p.DueDate,
		&p.Competency, &p.PaymentStatus, &p.PendingReason, &p.StatusDate,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find proposal: %w", err)
	}
	if brokerID != nil {
		p.BrokerID = *brokerID
	}
	if companyID != nil {
		p.InsuranceCompanyID = *companyID
	}
	return &p, nil
}

func (r *Repos) InsertProposal(ctx context.Context, p store.ProposalRow) error {
	query := `
		INSERT INTO proposals (
			client_id, broker_id, tenant_id, insurance_company_id, produto,
			linha_negocio, proposta, criada_em, status_proposta, forma_pagamento,
			valor, vencimento, competencia, status_pagamento, motivo_pendencia, "data"
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`
	_, err := r.q.Exec(ctx, query,
		p.ClientID, p.BrokerID, p.TenantID, p.InsuranceCompanyID, p.Product,
		p.BusinessLine, p.Number, p.CreatedAt, p.Phase, p.PaymentMethod,
		p.Amount, p.DueDate, p.Competency, p.PaymentStatus, p.PendingReason, p.StatusDate,
	)
	if err != nil {
		return fmt.Errorf("insert proposal: %w", err)
	}
	return nil
}

func (r *Repos) UpdateProposal(ctx context.Context, p store.ProposalRow) error {
	query := `
		UPDATE proposals SET
			client_id = $2,
			broker_id = $3,
			insurance_company_id = $4,
			produto = $5,
			linha_negocio = $6,
			criada_em = $7,
			status_proposta = $8,
			forma_pagamento = $9,
			valor = $10,
			vencimento = $11,
			competencia = $12,
			status_pagamento = $13,
			motivo_pendencia = $14,
			"data" = $15
		WHERE id = $1`
	_, err := r.q.Exec(ctx, query,
		p.ID, p.ClientID, p.BrokerID, p.InsuranceCompanyID, p.Product,
		p.BusinessLine, p.CreatedAt, p.Phase, p.PaymentMethod, p.Amount,
		p.DueDate, p.Competency, p.PaymentStatus, p.PendingReason, p.StatusDate,
	)
	if err != nil {
		return fmt.Errorf("update proposal: %w", err)
	}
	return nil
}

func (r *Repos) FindDefaulter(ctx context.Context, key store.DefaulterKey) (*store.DefaulterRow, error) {
	query := `
		SELECT id, broker_name, client_name, client_cpf, business_line, product_name,
		       original_due_date, current_due_date, contribution_value,
		       payment_status, payment_method, delay_days
		FROM defaulters_detailed
		WHERE tenant_id = $1 AND client_id = $2 AND proposal_number = $3
		  AND certificate_number = $4 AND competency = $5`
	d := store.DefaulterRow{DefaulterKey: key}
	var cpf *string
	err := r.q.QueryRow(ctx, query,
		key.TenantID, key.ClientID, key.ProposalNumber, key.CertificateNumber, key.Competency,
	).Scan(
		&d.ID, &d.BrokerName, &d.ClientName, &cpf, &d.BusinessLine, &d.ProductName,
		&d.OriginalDueDate, &d.CurrentDueDate, &d.Contribution,
		&d.PaymentStatus, &d.PaymentMethod, &d.DelayDays,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find defaulter: %w", err)
	}
	if cpf != nil {
		d.ClientCPF = *cpf
	}
	return &d, nil
}

func (r *Repos) InsertDefaulter(ctx context.Context, d store.DefaulterRow) error {
	query := `
		INSERT INTO defaulters_detailed (
			tenant_id, client_id, broker_name, client_name, client_cpf,
			business_line, product_name, competency, original_due_date,
			current_due_date, contribution_value, proposal_number,
			certificate_number, payment_status, payment_method, delay_days
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`
	_, err := r.q.Exec(ctx, query,
		d.TenantID, d.ClientID, d.BrokerName, d.ClientName, d.ClientCPF,
		d.BusinessLine, d.ProductName, d.Competency, d.OriginalDueDate,
		d.CurrentDueDate, d.Contribution, d.ProposalNumber,
		d.CertificateNumber, d.PaymentStatus, d.PaymentMethod, d.DelayDays,
	)
	if err != nil {
		return fmt.Errorf("insert defaulter: %w", err)
	}
	return nil
}

func (r *Repos) UpdateDefaulter(ctx context.Context, d store.DefaulterRow) error {
	query := `
		UPDATE defaulters_detailed SET
			broker_name = $2,
			client_name = $3,
			client_cpf = $4,
			business_line = $5,
			product_name = $6,
			original_due_date = $7,
			current_due_date = $8,
			contribution_value = $9,
			payment_status = $10,
			payment_method = $11,
			delay_days = $12
		WHERE id = $1`
	_, err := r.q.Exec(ctx, query,
		d.ID, d.BrokerName, d.ClientName, d.ClientCPF, d.BusinessLine, d.ProductName,
		d.OriginalDueDate, d.CurrentDueDate, d.Contribution,
		d.PaymentStatus, d.PaymentMethod, d.DelayDays,
	)
	if err != nil {
		return fmt.Errorf("update defaulter: %w", err)
	}
	return nil
}

func (r *Repos) FindProduct(ctx context.Context, key store.ProductKey) (*store.ProductRow, error) {
	query := `
		SELECT id, broker_name, business_line, product_type, product_status, insured_capital,
		       coverage_payment_period, due_day, last_payment, next_payment,
		       paid_installments_quantity, pending_installments_quantity, payment_frequency
		FROM products_clients
		WHERE tenant_id = $1 AND client_id = $2 AND proposal_number = $3
		  AND certificate_number = $4 AND coverage_name = $5`
	p := store.ProductRow{ProductKey: key}
	err := r.q.QueryRow(ctx, query,
		key.TenantID, key.ClientID, key.ProposalNumber, key.CertificateNumber, key.CoverageName,
	).Scan(
		&p.ID, &p.BrokerName, &p.BusinessLine, &p.ProductType, &p.Status, &p.InsuredCapital,
		&p.CoveragePaymentPeriod, &p.DueDay, &p.LastPayment, &p.NextPayment,
		&p.PaidInstallments, &p.PendingInstallments, &p.PaymentFrequency,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find product: %w", err)
	}
	return &p, nil
}

func (r *Repos) InsertProduct(ctx context.Context, p store.ProductRow) error {
	query := `
		INSERT INTO products_clients (
			tenant_id, client_id, broker_name, business_line, product_type,
			proposal_number, certificate_number, product_status, coverage_name,
			insured_capital, coverage_payment_period, due_day, last_payment,
			next_payment, paid_installments_quantity, pending_installments_quantity,
			payment_frequency
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`
	_, err := r.q.Exec(ctx, query,
		p.TenantID, p.ClientID, p.BrokerName, p.BusinessLine, p.ProductType,
		p.ProposalNumber, p.CertificateNumber, p.Status, p.CoverageName,
		p.InsuredCapital, p.CoveragePaymentPeriod, p.DueDay, p.LastPayment,
		p.NextPayment, p.PaidInstallments, p.PendingInstallments,
		p.PaymentFrequency,
	)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (r *Repos) UpdateProduct(ctx context.Context, p store.ProductRow) error {
	query := `
		UPDATE products_clients SET
			broker_name = $2,
			business_line = $3,
			product_type = $4,
			product_status = $5,
			insured_capital = $6,
			coverage_payment_period = $7,
			due_day = $8,
			last_payment = $9,
			next_payment = $10,
			paid_installments_quantity = $11,
			pending_installments_quantity = $12,
			payment_frequency = $13
		WHERE id = $1`
	_, err := r.q.Exec(ctx, query,
		p.ID, p.BrokerName, p.BusinessLine, p.ProductType, p.Status,
		p.InsuredCapital, p.CoveragePaymentPeriod, p.DueDay, p.LastPayment,
		p.NextPayment, p.PaidInstallments, p.PendingInstallments,
		p.PaymentFrequency,
	)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	return nil
}
