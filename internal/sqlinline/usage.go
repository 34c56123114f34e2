package sqlinline

const QSelectRemainingQuota = `--sql d668d57f-f939-46ab-ba80-093301094e4a
select coalesce(
           (select daily_limit from owner_quotas where owner_id = $1::text),
           $2::int
       ) - (
           select count(*)::int
           from video_jobs
           where owner_id = $1::text
             and created_at >= date_trunc('day', now())
       );
`
