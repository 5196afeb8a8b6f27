package store

import "context"

// UpsertNodeInfo applies the field-level monotonic merge for a NodeInfo
// row: absent fields (nil) never overwrite a stored value, and the whole
// row is left untouched if info.UpdateAt is older than what's stored.
func (s *Store) UpsertNodeInfo(ctx context.Context, info NodeInfo) error {
	const q = `
		INSERT INTO node_info (
			node_id, long_name, short_name, hw_model, is_licensed, role,
			firmware_version, region, modem_preset, has_default_channel,
			num_online_local_nodes, update_at, topic
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (node_id) DO UPDATE SET
			long_name               = COALESCE(EXCLUDED.long_name, node_info.long_name),
			short_name              = COALESCE(EXCLUDED.short_name, node_info.short_name),
			hw_model                = COALESCE(EXCLUDED.hw_model, node_info.hw_model),
			is_licensed             = COALESCE(EXCLUDED.is_licensed, node_info.is_licensed),
			role                    = COALESCE(EXCLUDED.role, node_info.role),
			firmware_version        = COALESCE(EXCLUDED.firmware_version, node_info.firmware_version),
			region                  = COALESCE(EXCLUDED.region, node_info.region),
			modem_preset            = COALESCE(EXCLUDED.modem_preset, node_info.modem_preset),
			has_default_channel     = COALESCE(EXCLUDED.has_default_channel, node_info.has_default_channel),
			num_online_local_nodes  = COALESCE(EXCLUDED.num_online_local_nodes, node_info.num_online_local_nodes),
			update_at               = GREATEST(EXCLUDED.update_at, node_info.update_at),
			topic                   = EXCLUDED.topic
		WHERE EXCLUDED.update_at >= node_info.update_at
	`
	_, err := s.db.Pool.Exec(ctx, q,
		info.NodeID, info.LongName, info.ShortName, info.HwModel, info.IsLicensed, info.Role,
		info.FirmwareVersion, info.Region, info.ModemPreset, info.HasDefaultChannel,
		info.NumOnlineLocalNodes, info.UpdateAt, info.Topic,
	)
	return err
}

// NodeInfoByID loads the NodeInfo row for id, returning ok=false if none
// exists.
func (s *Store) NodeInfoByID(ctx context.Context, id uint32) (NodeInfo, bool, error) {
	const q = `
		SELECT node_id, long_name, short_name, hw_model, is_licensed, role,
			firmware_version, region, modem_preset, has_default_channel,
			num_online_local_nodes, update_at, topic
		FROM node_info WHERE node_id = $1
	`
	var info NodeInfo
	err := s.db.Pool.QueryRow(ctx, q, id).Scan(
		&info.NodeID, &info.LongName, &info.ShortName, &info.HwModel, &info.IsLicensed, &info.Role,
		&info.FirmwareVersion, &info.Region, &info.ModemPreset, &info.HasDefaultChannel,
		&info.NumOnlineLocalNodes, &info.UpdateAt, &info.Topic,
	)
	if err != nil {
		return NodeInfo{}, false, noRowsToNotFound(err)
	}
	return info, true, nil
}
